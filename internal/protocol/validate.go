package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed matches every validation failure.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is wrapped when the type is a string outside the catalog.
	ErrUnknownType = errors.New("unknown message type")
	// ErrWrongDirection is returned when a payload is decoded for the other half of the catalog.
	ErrWrongDirection = errors.New("message sent in the wrong direction")
)

// ValidationError carries the human-readable reason a frame was rejected.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformed) match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrMalformed
}

func invalid(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// Validate is the single gate applied to a frame before any dispatch.
// A frame is well-formed iff it is a JSON object whose type is a non-empty
// string from the catalog, whose payload is an object and whose timestamp is
// a non-empty string.
func Validate(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Envelope{}, invalid("Invalid message format")
	}

	var msgType string
	if raw, ok := fields["type"]; !ok || json.Unmarshal(raw, &msgType) != nil || msgType == "" {
		return Envelope{}, invalid("Missing or invalid message type")
	}
	if !MessageType(msgType).IsKnown() {
		return Envelope{}, &ValidationError{
			Reason: fmt.Sprintf("Unknown message type: %s", msgType),
			Err:    ErrUnknownType,
		}
	}

	payload, ok := fields["payload"]
	if !ok || !isObject(payload) {
		return Envelope{}, invalid("Missing or invalid payload")
	}

	var timestamp string
	if raw, ok := fields["timestamp"]; !ok || json.Unmarshal(raw, &timestamp) != nil || timestamp == "" {
		return Envelope{}, invalid("Missing or invalid timestamp")
	}

	return Envelope{
		Type:      MessageType(msgType),
		Payload:   payload,
		Timestamp: timestamp,
	}, nil
}

// PeekType reads only the type field of a frame. It returns "" when the
// frame is not a JSON object with a string type.
func PeekType(data []byte) MessageType {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &head) != nil {
		return ""
	}
	return MessageType(head.Type)
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
