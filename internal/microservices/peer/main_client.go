package peer

import (
	"log/slog"
	"sync"

	"gfxrelay/internal/protocol"

	"github.com/google/uuid"
)

// MainClient is the Main dashboard's side of the relay: it sends cue and
// render traffic and receives render progress from Sub dashboards.
type MainClient struct {
	*Client

	mu            sync.RWMutex
	busy          bool
	activeSession string
}

func NewMainClient(opts Options, logger *slog.Logger) *MainClient {
	m := &MainClient{}
	m.Client = newClient(protocol.RoleMain, opts, logger, m.heartbeatPayload)
	return m
}

func (m *MainClient) heartbeatPayload() protocol.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := protocol.MainConnected
	if m.busy {
		status = protocol.MainBusy
	}
	return protocol.Heartbeat{MainStatus: status, ActiveSession: m.activeSession}
}

// SetActiveSession is reported in every subsequent heartbeat. Empty clears it.
func (m *MainClient) SetActiveSession(sessionID string) {
	m.mu.Lock()
	m.activeSession = sessionID
	m.mu.Unlock()
}

// SetBusy flips the heartbeat mainStatus between connected and busy.
func (m *MainClient) SetBusy(busy bool) {
	m.mu.Lock()
	m.busy = busy
	m.mu.Unlock()
}

// Send writes any Main->Sub message.
func (m *MainClient) Send(msg protocol.MainToSubMessage) error {
	return m.send(msg)
}

func (m *MainClient) SendCueItemSelected(p protocol.CueItemSelected) error {
	return m.send(p)
}

func (m *MainClient) SendCueItemCancelled(cueItemID string) error {
	return m.send(protocol.CueItemCancelled{CueItemID: cueItemID})
}

func (m *MainClient) SendHandUpdated(p protocol.HandUpdated) error {
	return m.send(p)
}

func (m *MainClient) SendSessionChanged(p protocol.SessionChanged) error {
	return m.send(p)
}

// SendRenderRequest sends p, generating a request ID when p has none, and
// returns the ID that went on the wire.
func (m *MainClient) SendRenderRequest(p protocol.RenderRequest) (string, error) {
	if p.RequestID == "" {
		p.RequestID = uuid.NewString()
	}
	return p.RequestID, m.send(p)
}

// Subscribe dispatches every Sub->Main message to h. Handler errors go to the
// error handlers. The returned function unsubscribes.
func (m *MainClient) Subscribe(h protocol.SubToMainHandler) func() {
	return m.OnMessage(func(env protocol.Envelope) {
		msg, err := protocol.DecodeSubToMain(env)
		if err != nil {
			m.logger.Warn("unexpected_message", "message_type", env.Type, "error", err.Error())
			m.notifyError(err)
			return
		}
		if err := protocol.DispatchSubToMain(h, msg); err != nil {
			m.logger.Warn("message_handler_failed", "message_type", env.Type, "error", err.Error())
			m.notifyError(err)
		}
	})
}
