package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("models: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Frame and element counts above this are rejected before allocation.
		MaxArrayElements: 65536,
	}.DecMode()
	if err != nil {
		panic("models: CBOR decoder initialization failed: " + err.Error())
	}
}

// cborNull is the encoding of a nil value; scene feeds use it to clear the display
var cborNull = []byte{0xf6}

// IsClearPayload reports whether data encodes "no scene"
func IsClearPayload(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), cborNull)
}

// EncodeConfiguration serializes a Configuration to the wire format
func EncodeConfiguration(cfg *Configuration) ([]byte, error) {
	return encMode.Marshal(cfg)
}

// DecodeConfiguration parses a wire-format Configuration
func DecodeConfiguration(data []byte) (*Configuration, error) {
	var cfg Configuration
	if err := decMode.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// EncodeResource serializes a Resource to the wire format
func EncodeResource(res *Resource) ([]byte, error) {
	return encMode.Marshal(res)
}

// ErrEmptyResource is returned for a resource without frames
var ErrEmptyResource = errors.New("resource has no frames")

// DecodeResource parses a wire-format Resource
func DecodeResource(data []byte) (*Resource, error) {
	var res Resource
	if err := decMode.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode resource: %w", err)
	}
	if len(res.Frames) == 0 {
		return nil, ErrEmptyResource
	}
	return &res, nil
}

// MarshalCBOR encodes the screen with each element wrapped in its kind envelope
func (s Screen) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(s.toWire())
}

func (s *Screen) UnmarshalCBOR(data []byte) error {
	var w wireScreen
	if err := decMode.Unmarshal(data, &w); err != nil {
		return err
	}
	return s.fromWire(w)
}

func (s Screen) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

func (s *Screen) UnmarshalJSON(data []byte) error {
	var w wireScreen
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return s.fromWire(w)
}

func (s Screen) MarshalYAML() (interface{}, error) {
	return s.toWire(), nil
}

func (s *Screen) UnmarshalYAML(node *yaml.Node) error {
	var w wireScreen
	if err := node.Decode(&w); err != nil {
		return err
	}
	return s.fromWire(w)
}
