// Package protocol defines the JSON envelope exchanged between the hub, rovers
// and frontends, one object per WebSocket text frame.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType is the closed vocabulary of envelope types.
type MessageType string

const (
	TypeConnect         MessageType = "CONNECT"
	TypeDisconnect      MessageType = "DISCONNECT"
	TypeCommand         MessageType = "COMMAND"
	TypeCommandResponse MessageType = "COMMAND_RESPONSE"
	TypeTelemetry       MessageType = "TELEMETRY"
	TypeStatusUpdate    MessageType = "STATUS_UPDATE"
	TypeError           MessageType = "ERROR"

	// Map-data extension.
	TypeMapData    MessageType = "MAP_DATA"
	TypeRequestMap MessageType = "REQUEST_MAP"
)

var knownTypes = map[MessageType]struct{}{
	TypeConnect:         {},
	TypeDisconnect:      {},
	TypeCommand:         {},
	TypeCommandResponse: {},
	TypeTelemetry:       {},
	TypeStatusUpdate:    {},
	TypeError:           {},
	TypeMapData:         {},
	TypeRequestMap:      {},
}

// Valid reports whether t belongs to the vocabulary.
func (t MessageType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// ErrInvalidMessage is wrapped by every decode/validation failure.
var ErrInvalidMessage = errors.New("invalid message format")

// Envelope is the frame shape shared by every participant.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp is milliseconds since the Unix epoch. Inbound values are
	// informational only; the hub never orders anything by them.
	Timestamp int64 `json:"timestamp,omitempty"`

	RoverID         *RoverRef `json:"roverId,omitempty"`
	RoverIdentifier string    `json:"roverIdentifier,omitempty"`
}

// New builds an outbound envelope. A zero roverID leaves roverId unset.
func New(t MessageType, roverID int64, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if roverID > 0 {
		env.RoverID = NumericRover(roverID)
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// MustNew is New for payloads that are known to marshal.
func MustNew(t MessageType, roverID int64, payload any) Envelope {
	env, err := New(t, roverID, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Stamp sets Timestamp to now when the sender left it empty.
func (e Envelope) Stamp(now time.Time) Envelope {
	if e.Timestamp == 0 {
		e.Timestamp = now.UnixMilli()
	}
	return e
}

// Encode stamps the envelope and renders it as one JSON frame.
func (e Envelope) Encode(now time.Time) ([]byte, error) {
	return json.Marshal(e.Stamp(now))
}

// DecodePayload unmarshals the payload into v. A missing payload is an error.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 || bytes.Equal(e.Payload, []byte("null")) {
		return fmt.Errorf("%w: %s payload is required", ErrInvalidMessage, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidMessage, e.Type, err)
	}
	return nil
}

// Decode parses and validates one inbound frame. The returned envelope is
// stamped with now when the sender omitted a timestamp.
func Decode(data []byte, now time.Time) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: frame is not a JSON object", ErrInvalidMessage)
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: type is required", ErrInvalidMessage)
	}
	if !env.Type.Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, env.Type)
	}
	if env.Timestamp < 0 {
		return Envelope{}, fmt.Errorf("%w: timestamp must not be negative", ErrInvalidMessage)
	}
	return env.Stamp(now), nil
}
