package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message protocol between the Main and Sub dashboards.
// Every frame on the wire is one Envelope encoded as a UTF-8 JSON text frame.

// MessageType names one entry of the catalog.
type MessageType string

const ( // Main -> Sub
	TypeCueItemSelected  MessageType = "cue_item_selected"  // operator picked a cue item
	TypeCueItemCancelled MessageType = "cue_item_cancelled" // operator dropped a cue item
	TypeHandUpdated      MessageType = "hand_updated"       // hand data changed upstream
	TypeSessionChanged   MessageType = "session_changed"    // active session switched
	TypeRenderRequest    MessageType = "render_request"     // ask Sub to render a composition
	TypeHeartbeat        MessageType = "heartbeat"          // Main liveness
)

const ( // Sub -> Main
	TypeRenderStatusUpdate  MessageType = "render_status_update" // render progress
	TypeRenderComplete      MessageType = "render_complete"      // render finished with output
	TypeRenderError         MessageType = "render_error"         // render failed
	TypeMappingChanged      MessageType = "mapping_changed"      // slot mapping edited on Sub
	TypeCompositionSelected MessageType = "composition_selected" // composition picked on Sub
	TypeHeartbeatAck        MessageType = "heartbeat_ack"        // Sub liveness
)

// TimestampLayout is the ISO-8601 layout used for Envelope.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Direction is one of the two disjoint halves of the catalog.
type Direction int

const (
	DirectionUnknown Direction = iota
	MainToSub
	SubToMain
)

func (d Direction) String() string {
	switch d {
	case MainToSub:
		return "main_to_sub"
	case SubToMain:
		return "sub_to_main"
	default:
		return "unknown"
	}
}

var mainToSubTypes = []MessageType{
	TypeCueItemSelected,
	TypeCueItemCancelled,
	TypeHandUpdated,
	TypeSessionChanged,
	TypeRenderRequest,
	TypeHeartbeat,
}

var subToMainTypes = []MessageType{
	TypeRenderStatusUpdate,
	TypeRenderComplete,
	TypeRenderError,
	TypeMappingChanged,
	TypeCompositionSelected,
	TypeHeartbeatAck,
}

var catalog = func() map[MessageType]Direction {
	m := make(map[MessageType]Direction, len(mainToSubTypes)+len(subToMainTypes))
	for _, t := range mainToSubTypes {
		m[t] = MainToSub
	}
	for _, t := range subToMainTypes {
		m[t] = SubToMain
	}
	return m
}()

// MainToSubTypes returns the Main -> Sub half of the catalog.
func MainToSubTypes() []MessageType {
	return append([]MessageType(nil), mainToSubTypes...)
}

// SubToMainTypes returns the Sub -> Main half of the catalog.
func SubToMainTypes() []MessageType {
	return append([]MessageType(nil), subToMainTypes...)
}

// DirectionOf reports which half of the catalog t belongs to.
func DirectionOf(t MessageType) Direction {
	return catalog[t]
}

// IsKnown reports whether t is part of the catalog.
func (t MessageType) IsKnown() bool {
	_, ok := catalog[t]
	return ok
}

// IsHeartbeat reports whether t is a liveness-only message the relay absorbs.
func (t MessageType) IsHeartbeat() bool {
	return t == TypeHeartbeat || t == TypeHeartbeatAck
}

// Role is the logical identity of a peer.
type Role string

const (
	RoleMain Role = "main"
	RoleSub  Role = "sub"
)

// ParseRole parses the handshake role, rejecting anything but main or sub.
func ParseRole(v string) (Role, error) {
	switch Role(v) {
	case RoleMain:
		return RoleMain, nil
	case RoleSub:
		return RoleSub, nil
	default:
		return "", fmt.Errorf("unknown role: %q", v)
	}
}

// Opposite returns the role that receives what r sends.
func (r Role) Opposite() Role {
	if r == RoleMain {
		return RoleSub
	}
	return RoleMain
}

// Sends returns the catalog direction r is allowed to send.
func (r Role) Sends() Direction {
	switch r {
	case RoleMain:
		return MainToSub
	case RoleSub:
		return SubToMain
	default:
		return DirectionUnknown
	}
}

func (r Role) String() string { return string(r) }

// Envelope is the wire shape of every message.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Direction returns the catalog half the envelope belongs to.
func (e Envelope) Direction() Direction {
	return DirectionOf(e.Type)
}

// Time parses the sender timestamp.
func (e Envelope) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// ToJSON marshals the envelope for the transport.
func (e Envelope) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", e.Type, err)
	}
	return data, nil
}

// FormatTimestamp renders t the way senders stamp envelopes.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NewEnvelope stamps a typed message with now and encodes its payload.
func NewEnvelope(msg Message, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msg.MessageType(), err)
	}
	return Envelope{
		Type:      msg.MessageType(),
		Payload:   payload,
		Timestamp: FormatTimestamp(now),
	}, nil
}
