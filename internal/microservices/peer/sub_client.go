package peer

import (
	"log/slog"
	"sync"

	"gfxrelay/internal/protocol"
)

// StatusProvider reports the Sub dashboard's render state for heartbeat_ack.
type StatusProvider func() protocol.HeartbeatAck

func readyStatus() protocol.HeartbeatAck {
	return protocol.HeartbeatAck{SubStatus: protocol.SubReady}
}

// SubClient is the Sub dashboard's side of the relay.
type SubClient struct {
	*Client

	mu     sync.RWMutex
	status StatusProvider
}

func NewSubClient(opts Options, logger *slog.Logger) *SubClient {
	s := &SubClient{status: readyStatus}
	s.Client = newClient(protocol.RoleSub, opts, logger, s.heartbeatPayload)
	return s
}

func (s *SubClient) heartbeatPayload() protocol.Message {
	s.mu.RLock()
	provider := s.status
	s.mu.RUnlock()
	return provider()
}

// SetStatusProvider replaces the source of heartbeat_ack payloads. nil
// restores the idle default.
func (s *SubClient) SetStatusProvider(p StatusProvider) {
	if p == nil {
		p = readyStatus
	}
	s.mu.Lock()
	s.status = p
	s.mu.Unlock()
}

// Send writes any Sub->Main message.
func (s *SubClient) Send(msg protocol.SubToMainMessage) error {
	return s.send(msg)
}

func (s *SubClient) SendRenderStatusUpdate(p protocol.RenderStatusUpdate) error {
	return s.send(p)
}

func (s *SubClient) SendRenderComplete(p protocol.RenderComplete) error {
	return s.send(p)
}

func (s *SubClient) SendRenderError(p protocol.RenderError) error {
	return s.send(p)
}

func (s *SubClient) SendMappingChanged(p protocol.MappingChanged) error {
	return s.send(p)
}

func (s *SubClient) SendCompositionSelected(p protocol.CompositionSelected) error {
	return s.send(p)
}

// Subscribe dispatches every Main->Sub message to h.
func (s *SubClient) Subscribe(h protocol.MainToSubHandler) func() {
	return s.OnMessage(func(env protocol.Envelope) {
		msg, err := protocol.DecodeMainToSub(env)
		if err != nil {
			s.logger.Warn("unexpected_message", "message_type", env.Type, "error", err.Error())
			s.notifyError(err)
			return
		}
		if err := protocol.DispatchMainToSub(h, msg); err != nil {
			s.logger.Warn("message_handler_failed", "message_type", env.Type, "error", err.Error())
			s.notifyError(err)
		}
	})
}
