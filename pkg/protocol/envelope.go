package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the only data frame shape sent over the wire.
// Key is serialized as null when unset.
type Envelope struct {
	Key     *string         `json:"key"`
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope for group with a null key.
// A json.RawMessage or []byte payload is used verbatim (after a validity
// check); anything else is marshaled.
func NewEnvelope(group string, payload any) (*Envelope, error) {
	if group == "" {
		return nil, ErrEmptyGroup
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{Group: group, Payload: raw}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedFrame)
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedFrame)
		}
		return json.RawMessage(p), nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return data, nil
	}
}

// WithKey returns a copy of the envelope carrying key.
func (e *Envelope) WithKey(key string) *Envelope {
	cp := *e
	cp.Key = &key
	return &cp
}

// Encode serializes the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(Envelope{Key: e.Key, Group: e.Group, Payload: payload})
}

// UnmarshalPayload decodes the payload into v.
func (e *Envelope) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// DecodeEnvelope parses and validates a data frame.
// Frames that are not JSON, or do not match the envelope schema, return an
// error wrapping ErrMalformedFrame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if err := ValidateEnvelope(data); err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	// Keep payload bytes exactly as received, minus surrounding whitespace.
	env.Payload = bytes.TrimSpace(env.Payload)
	return &env, nil
}
