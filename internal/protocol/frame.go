// Package protocol defines the frames exchanged over a hub connection and
// the codecs that put them on the wire.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCodec is returned by Lookup for an unsupported codec name.
	ErrUnknownCodec = errors.New("protocol: unknown codec")

	// ErrMalformedFrame is returned when a frame decodes but names no event.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
)

// Frame is one event with its payload. Decoded objects are map[string]any
// regardless of codec.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Codec encodes and decodes frames. Binary codecs travel in binary
// WebSocket messages, the rest in text messages.
type Codec interface {
	Name() string
	Binary() bool
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// Lookup returns the codec registered under name. An empty name selects JSON.
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func validate(f Frame) (Frame, error) {
	if f.Event == "" {
		return Frame{}, ErrMalformedFrame
	}
	return f, nil
}
