// envelope.go defines the JSON frame wrapping every inbound stream message.
package wsstream

import (
	"encoding/json"
	"fmt"
)

const (
	// EnvelopeSuccess marks a frame carrying a payload.
	EnvelopeSuccess = "success"
	// EnvelopeError marks a frame carrying a human-readable error message.
	EnvelopeError = "error"
)

// Envelope is the wire frame common to the tail and event streams:
// {type: "success"|"error", message?, payload}.
type Envelope struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseEnvelope decodes a raw frame. Empty frames (the server echoing a
// keepalive) decode to a zero Envelope without error.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if len(raw) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode stream envelope: %w", err)
	}
	return env, nil
}

// IsError reports whether the envelope carries a server-side application
// error. Error envelopes surface their message and leave render state alone.
func (e Envelope) IsError() bool {
	return e.Type == EnvelopeError
}
