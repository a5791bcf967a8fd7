// Package netstate reports connectivity phases to the compositor through a
// last-value-wins signal.
package netstate

import "fmt"

// State is a connectivity phase
type State int

const (
	Connecting State = iota
	WaitingForAddress
	Connected
	Ready
	Disconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case WaitingForAddress:
		return "waiting_for_address"
	case Connected:
		return "connected"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Up reports whether scenes may be shown
func (s State) Up() bool {
	return s == Connected || s == Ready
}

// Message is the status line shown under the wifi icon while not up
func (s State) Message() string {
	switch s {
	case Connecting:
		return "Connecting to WIFI"
	case WaitingForAddress:
		return "Waiting for IP"
	case Disconnected:
		return "Lost WIFI..."
	case Failed:
		return "Failed to connect. Retrying..."
	}
	return ""
}

// MarshalText lets the state appear by name in JSON status reports
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
