package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"gfxrelay/internal/config"
	"gfxrelay/internal/protocol"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected         = errors.New("not connected to relay")
	ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")
)

// WriteWait bounds a single frame write to the relay.
const WriteWait = 5 * time.Second

// ConnectionStatus is what subscribers see of the connection state machine.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusReconnecting ConnectionStatus = "reconnecting"
)

// ConnectionInfo is a point-in-time copy of the client's connection state.
type ConnectionInfo struct {
	Status             ConnectionStatus
	LastConnectedAt    time.Time // zero until the first successful open
	LastDisconnectedAt time.Time
	ReconnectAttempts  int
}

type (
	MessageHandler    func(env protocol.Envelope)
	ConnectionHandler func(status ConnectionStatus)
	ErrorHandler      func(err error)
)

// Options configures a peer client.
type Options struct {
	URL                  string // relay endpoint without the role query
	HeartbeatInterval    time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	Dialer               *websocket.Dialer // nil means websocket.DefaultDialer
}

func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:                  cfg.RelayURL,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}
}

// internal states; connecting and waiting both read as reconnecting
type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateWaiting
	stateConnected
)

func (s state) public() ConnectionStatus {
	switch s {
	case stateConnected:
		return StatusConnected
	case stateConnecting, stateWaiting:
		return StatusReconnecting
	default:
		return StatusDisconnected
	}
}

type registered[T any] struct {
	id int
	fn T
}

// Client owns one outbound connection to the relay for a fixed role. It
// reconnects on its own after unexpected closes, up to MaxReconnectAttempts
// times, and sends the role heartbeat while connected.
type Client struct {
	role      protocol.Role
	opts      Options
	dialer    *websocket.Dialer
	logger    *slog.Logger
	heartbeat func() protocol.Message

	mu                 sync.Mutex
	state              state
	conn               *websocket.Conn
	gen                uint64 // bumped by Connect and Disconnect; stale dials and reads compare against it
	attempts           int
	lastConnectedAt    time.Time
	lastDisconnectedAt time.Time
	reconnectTimer     *time.Timer
	stopHeartbeat      chan struct{}

	writeMu sync.Mutex

	hmu                sync.RWMutex
	nextID             int
	messageHandlers    []registered[MessageHandler]
	connectionHandlers []registered[ConnectionHandler]
	errorHandlers      []registered[ErrorHandler]
}

func newClient(role protocol.Role, opts Options, logger *slog.Logger, heartbeat func() protocol.Message) *Client {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Client{
		role:      role,
		opts:      opts,
		dialer:    dialer,
		logger:    logger.With("role", role),
		heartbeat: heartbeat,
	}
}

// Role returns the role this client connects as.
func (c *Client) Role() protocol.Role {
	return c.role
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid relay url %q: %w", c.opts.URL, err)
	}
	q := u.Query()
	q.Set("type", c.role.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect starts dialing the relay in the background. It does nothing when
// the client is already connected or a dial is in flight.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == stateConnected || c.state == stateConnecting {
		status := c.state.public()
		c.mu.Unlock()
		c.logger.Warn("connect_ignored", "status", status)
		return
	}
	gen := c.beginDialLocked()
	c.mu.Unlock()

	c.notifyStatus(StatusReconnecting)
	go c.dial(gen)
}

// reconnect is the scheduled retry for generation gen. The staleness check
// and the move to connecting share one lock hold, so a Disconnect landing
// after the timer fired still wins.
func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != stateWaiting {
		c.mu.Unlock()
		c.logger.Debug("stale_reconnect_skipped")
		return
	}
	next := c.beginDialLocked()
	c.mu.Unlock()

	c.notifyStatus(StatusReconnecting)
	go c.dial(next)
}

func (c *Client) beginDialLocked() uint64 {
	c.stopReconnectTimerLocked()
	c.gen++
	c.state = stateConnecting
	return c.gen
}

func (c *Client) dial(gen uint64) {
	endpoint, err := c.endpoint()
	var conn *websocket.Conn
	if err == nil {
		conn, _, err = c.dialer.Dial(endpoint, nil)
	}

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect (or a newer Connect) won the race
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.state = stateDisconnected
		c.lastDisconnectedAt = time.Now()
		c.mu.Unlock()

		c.logger.Warn("relay_dial_failed", "url", c.opts.URL, "error", err.Error())
		c.notifyError(fmt.Errorf("dial relay: %w", err))
		c.notifyStatus(StatusDisconnected)
		c.scheduleReconnect(gen)
		return
	}

	stop := make(chan struct{})
	c.conn = conn
	c.state = stateConnected
	c.attempts = 0
	c.lastConnectedAt = time.Now()
	c.stopHeartbeat = stop
	c.mu.Unlock()

	c.logger.Info("relay_connected", "url", c.opts.URL)
	c.notifyStatus(StatusConnected)

	go c.heartbeatLoop(stop)
	go c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, conn, err)
			return
		}

		env, err := protocol.Validate(data)
		if err != nil {
			c.logger.Warn("invalid_message_dropped", "error", err.Error())
			c.notifyError(err)
			continue
		}
		c.logger.Debug("message_received", "message_type", env.Type)
		c.notifyMessage(env)
	}
}

func (c *Client) handleClose(gen uint64, conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		// Disconnect already tore this connection down
		c.mu.Unlock()
		return
	}
	c.stopHeartbeatLocked()
	c.conn = nil
	c.state = stateDisconnected
	c.lastDisconnectedAt = time.Now()
	c.mu.Unlock()

	conn.Close()

	var closeErr *websocket.CloseError
	if errors.As(cause, &closeErr) {
		c.logger.Info("relay_connection_closed", "code", closeErr.Code, "reason", closeErr.Text)
	} else {
		c.logger.Warn("relay_connection_lost", "error", cause.Error())
		c.notifyError(cause)
	}
	c.notifyStatus(StatusDisconnected)
	c.scheduleReconnect(gen)
}

// scheduleReconnect arms a single reconnect after the fixed interval, or
// reports ErrMaxReconnectAttempts once the budget is spent.
func (c *Client) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		attempts := c.attempts
		c.mu.Unlock()

		c.logger.Error("max_reconnect_attempts_reached", "attempts", attempts)
		c.notifyError(ErrMaxReconnectAttempts)
		return
	}

	c.attempts++
	attempt := c.attempts
	c.state = stateWaiting
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectInterval, func() {
		c.reconnect(gen)
	})
	c.mu.Unlock()

	c.logger.Info("relay_reconnect_scheduled",
		"attempt", attempt,
		"max_attempts", c.opts.MaxReconnectAttempts,
		"in", c.opts.ReconnectInterval.String(),
	)
	c.notifyStatus(StatusReconnecting)
}

// Disconnect closes the connection with 1000 "Client disconnect" and cancels
// any pending reconnect and heartbeat. It never schedules a reconnect and is
// safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopReconnectTimerLocked()
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.state = stateDisconnected
	c.lastDisconnectedAt = time.Now()
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Client disconnect")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait))
		c.writeMu.Unlock()
		conn.Close()
		c.logger.Info("relay_disconnected")
	}
	c.notifyStatus(StatusDisconnected)
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) stopHeartbeatLocked() {
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
		c.stopHeartbeat = nil
	}
}

func (c *Client) heartbeatLoop(stop <-chan struct{}) {
	if c.heartbeat == nil || c.opts.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.send(c.heartbeat()); err != nil {
				c.logger.Debug("heartbeat_send_failed", "error", err.Error())
			}
		case <-stop:
			return
		}
	}
}

// SendEnvelope writes env to the relay. Envelopes whose type belongs to the
// other direction are refused before touching the wire.
func (c *Client) SendEnvelope(env protocol.Envelope) error {
	if !env.Type.IsKnown() {
		return fmt.Errorf("%w: %s", protocol.ErrUnknownType, env.Type)
	}
	if env.Direction() != c.role.Sends() {
		return fmt.Errorf("%w: %s from %s", protocol.ErrWrongDirection, env.Type, c.role)
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == stateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Warn("send_while_disconnected", "message_type", env.Type)
		return ErrNotConnected
	}

	data, err := env.ToJSON()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(WriteWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("send_failed", "message_type", env.Type, "error", err.Error())
		c.notifyError(err)
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	c.logger.Debug("message_sent", "message_type", env.Type)
	return nil
}

func (c *Client) send(msg protocol.Message) error {
	env, err := protocol.NewEnvelope(msg, time.Now())
	if err != nil {
		return err
	}
	return c.SendEnvelope(env)
}

// OnMessage registers h for every validated inbound message. The returned
// function removes it.
func (c *Client) OnMessage(h MessageHandler) func() {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.nextID++
	id := c.nextID
	c.messageHandlers = append(c.messageHandlers, registered[MessageHandler]{id: id, fn: h})
	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		c.messageHandlers = without(c.messageHandlers, id)
	}
}

// OnConnectionChange registers h for status updates.
func (c *Client) OnConnectionChange(h ConnectionHandler) func() {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.nextID++
	id := c.nextID
	c.connectionHandlers = append(c.connectionHandlers, registered[ConnectionHandler]{id: id, fn: h})
	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		c.connectionHandlers = without(c.connectionHandlers, id)
	}
}

// OnError registers h for parse errors, transport errors and ErrMaxReconnectAttempts.
func (c *Client) OnError(h ErrorHandler) func() {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.nextID++
	id := c.nextID
	c.errorHandlers = append(c.errorHandlers, registered[ErrorHandler]{id: id, fn: h})
	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		c.errorHandlers = without(c.errorHandlers, id)
	}
}

func without[T any](list []registered[T], id int) []registered[T] {
	out := make([]registered[T], 0, len(list))
	for _, r := range list {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

func (c *Client) notifyMessage(env protocol.Envelope) {
	c.hmu.RLock()
	handlers := append([]registered[MessageHandler](nil), c.messageHandlers...)
	c.hmu.RUnlock()

	for _, h := range handlers {
		c.safeCall("message", func() { h.fn(env) })
	}
}

func (c *Client) notifyStatus(status ConnectionStatus) {
	c.hmu.RLock()
	handlers := append([]registered[ConnectionHandler](nil), c.connectionHandlers...)
	c.hmu.RUnlock()

	for _, h := range handlers {
		c.safeCall("connection", func() { h.fn(status) })
	}
}

func (c *Client) notifyError(err error) {
	c.hmu.RLock()
	handlers := append([]registered[ErrorHandler](nil), c.errorHandlers...)
	c.hmu.RUnlock()

	for _, h := range handlers {
		c.safeCall("error", func() { h.fn(err) })
	}
}

// a panicking handler must not take the read loop or its siblings down
func (c *Client) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler_panic", "handler", kind, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// ConnectionInfo returns a copy of the current connection state.
func (c *Client) ConnectionInfo() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionInfo{
		Status:             c.state.public(),
		LastConnectedAt:    c.lastConnectedAt,
		LastDisconnectedAt: c.lastDisconnectedAt,
		ReconnectAttempts:  c.attempts,
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}
