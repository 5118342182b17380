package protocol

import (
	"encoding/json"
	"fmt"
)

// MainToSubHandler receives every Main -> Sub message. Implementations must
// cover the whole half of the catalog; MainToSubFuncs fills the gaps.
type MainToSubHandler interface {
	OnCueItemSelected(msg CueItemSelected) error
	OnCueItemCancelled(msg CueItemCancelled) error
	OnHandUpdated(msg HandUpdated) error
	OnSessionChanged(msg SessionChanged) error
	OnRenderRequest(msg RenderRequest) error
	OnHeartbeat(msg Heartbeat) error
}

// SubToMainHandler receives every Sub -> Main message.
type SubToMainHandler interface {
	OnRenderStatusUpdate(msg RenderStatusUpdate) error
	OnRenderComplete(msg RenderComplete) error
	OnRenderError(msg RenderError) error
	OnMappingChanged(msg MappingChanged) error
	OnCompositionSelected(msg CompositionSelected) error
	OnHeartbeatAck(msg HeartbeatAck) error
}

func decodeAs[T Message](raw json.RawMessage) (T, error) {
	var msg T
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, &ValidationError{
			Reason: fmt.Sprintf("Invalid %s payload: %v", msg.MessageType(), err),
			Err:    err,
		}
	}
	return msg, nil
}

// DecodeMainToSub turns a validated envelope into its typed Main -> Sub payload.
func DecodeMainToSub(env Envelope) (MainToSubMessage, error) {
	switch env.Type {
	case TypeCueItemSelected:
		return decodeAs[CueItemSelected](env.Payload)
	case TypeCueItemCancelled:
		return decodeAs[CueItemCancelled](env.Payload)
	case TypeHandUpdated:
		return decodeAs[HandUpdated](env.Payload)
	case TypeSessionChanged:
		return decodeAs[SessionChanged](env.Payload)
	case TypeRenderRequest:
		return decodeAs[RenderRequest](env.Payload)
	case TypeHeartbeat:
		return decodeAs[Heartbeat](env.Payload)
	}
	if env.Type.IsKnown() {
		return nil, fmt.Errorf("%w: %s is not a main_to_sub message", ErrWrongDirection, env.Type)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
}

// DecodeSubToMain turns a validated envelope into its typed Sub -> Main payload.
func DecodeSubToMain(env Envelope) (SubToMainMessage, error) {
	switch env.Type {
	case TypeRenderStatusUpdate:
		return decodeAs[RenderStatusUpdate](env.Payload)
	case TypeRenderComplete:
		return decodeAs[RenderComplete](env.Payload)
	case TypeRenderError:
		return decodeAs[RenderError](env.Payload)
	case TypeMappingChanged:
		return decodeAs[MappingChanged](env.Payload)
	case TypeCompositionSelected:
		return decodeAs[CompositionSelected](env.Payload)
	case TypeHeartbeatAck:
		return decodeAs[HeartbeatAck](env.Payload)
	}
	if env.Type.IsKnown() {
		return nil, fmt.Errorf("%w: %s is not a sub_to_main message", ErrWrongDirection, env.Type)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
}

// DispatchMainToSub calls the handler method matching msg.
func DispatchMainToSub(h MainToSubHandler, msg MainToSubMessage) error {
	switch m := msg.(type) {
	case CueItemSelected:
		return h.OnCueItemSelected(m)
	case CueItemCancelled:
		return h.OnCueItemCancelled(m)
	case HandUpdated:
		return h.OnHandUpdated(m)
	case SessionChanged:
		return h.OnSessionChanged(m)
	case RenderRequest:
		return h.OnRenderRequest(m)
	case Heartbeat:
		return h.OnHeartbeat(m)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

// DispatchSubToMain calls the handler method matching msg.
func DispatchSubToMain(h SubToMainHandler, msg SubToMainMessage) error {
	switch m := msg.(type) {
	case RenderStatusUpdate:
		return h.OnRenderStatusUpdate(m)
	case RenderComplete:
		return h.OnRenderComplete(m)
	case RenderError:
		return h.OnRenderError(m)
	case MappingChanged:
		return h.OnMappingChanged(m)
	case CompositionSelected:
		return h.OnCompositionSelected(m)
	case HeartbeatAck:
		return h.OnHeartbeatAck(m)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}

// MainToSubFuncs adapts optional callbacks to MainToSubHandler; nil fields are skipped.
type MainToSubFuncs struct {
	CueItemSelected  func(CueItemSelected) error
	CueItemCancelled func(CueItemCancelled) error
	HandUpdated      func(HandUpdated) error
	SessionChanged   func(SessionChanged) error
	RenderRequest    func(RenderRequest) error
	Heartbeat        func(Heartbeat) error
}

func (f MainToSubFuncs) OnCueItemSelected(m CueItemSelected) error   { return call(f.CueItemSelected, m) }
func (f MainToSubFuncs) OnCueItemCancelled(m CueItemCancelled) error { return call(f.CueItemCancelled, m) }
func (f MainToSubFuncs) OnHandUpdated(m HandUpdated) error           { return call(f.HandUpdated, m) }
func (f MainToSubFuncs) OnSessionChanged(m SessionChanged) error     { return call(f.SessionChanged, m) }
func (f MainToSubFuncs) OnRenderRequest(m RenderRequest) error       { return call(f.RenderRequest, m) }
func (f MainToSubFuncs) OnHeartbeat(m Heartbeat) error               { return call(f.Heartbeat, m) }

// SubToMainFuncs adapts optional callbacks to SubToMainHandler; nil fields are skipped.
type SubToMainFuncs struct {
	RenderStatusUpdate  func(RenderStatusUpdate) error
	RenderComplete      func(RenderComplete) error
	RenderError         func(RenderError) error
	MappingChanged      func(MappingChanged) error
	CompositionSelected func(CompositionSelected) error
	HeartbeatAck        func(HeartbeatAck) error
}

func (f SubToMainFuncs) OnRenderStatusUpdate(m RenderStatusUpdate) error {
	return call(f.RenderStatusUpdate, m)
}
func (f SubToMainFuncs) OnRenderComplete(m RenderComplete) error { return call(f.RenderComplete, m) }
func (f SubToMainFuncs) OnRenderError(m RenderError) error       { return call(f.RenderError, m) }
func (f SubToMainFuncs) OnMappingChanged(m MappingChanged) error { return call(f.MappingChanged, m) }
func (f SubToMainFuncs) OnCompositionSelected(m CompositionSelected) error {
	return call(f.CompositionSelected, m)
}
func (f SubToMainFuncs) OnHeartbeatAck(m HeartbeatAck) error { return call(f.HeartbeatAck, m) }

func call[T any](fn func(T) error, m T) error {
	if fn == nil {
		return nil
	}
	return fn(m)
}
