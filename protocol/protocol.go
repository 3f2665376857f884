package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrInvalidPayload marks decode-time payload failures (malformed JSON,
// missing or mistyped fields). The dispatcher turns it into an error frame.
var ErrInvalidPayload = errors.New("invalid payload")

// Envelope is one wire frame: a kind tag plus a free-form payload.
// The same shape is used in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func ParseEnvelope(line []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	return &env, nil
}

// Encode marshals one outbound frame without the trailing newline;
// the connection write path appends it.
func Encode(kind string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, Payload: raw})
}

// ErrorFrame builds a bare error frame. The payload is a plain string,
// matching what clients already parse.
func ErrorFrame(message string) []byte {
	frame, err := Encode("error", message)
	if err != nil {
		return []byte(`{"type":"error","payload":"Internal error"}`)
	}
	return frame
}

// Reply is a handler's direct response before encoding. A nil Reply means the
// handler already delivered everything through the registry.
type Reply struct {
	Kind    string
	Payload any
}

func NewReply(kind string, payload any) *Reply {
	return &Reply{Kind: kind, Payload: payload}
}

// validator is implemented by every request payload; Bind runs it after
// decoding so missing-field bugs surface on one path.
type validator interface {
	Validate() error
}

// Bind decodes a request payload into its per-kind schema and validates it.
func Bind(raw json.RawMessage, v validator) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
