package models

import "time"

// RenderRequest asks for an applet to be rendered and stored as a sprite
type RenderRequest struct {
	Type   string            `json:"type"`
	UUID   string            `json:"uuid"`
	AppID  string            `json:"app_id"`
	Key    string            `json:"key"`
	Params map[string]string `json:"params"`
}

// RenderResult describes a sprite produced from an applet
type RenderResult struct {
	Type        string    `json:"type"`
	UUID        string    `json:"uuid"`
	DeviceID    string    `json:"device_id"`
	AppID       string    `json:"app_id"`
	Key         string    `json:"key"`
	Frames      int       `json:"frames"`
	Bytes       int       `json:"bytes"`
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
	Resource    *Resource `json:"-"`
}
