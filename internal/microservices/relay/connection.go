package relay

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gfxrelay/internal/protocol"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	WriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	PongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10

	sendBufferSize = 256
)

// Close codes used by the relay.
const (
	CloseNormalClosure   = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	ClosePolicyViolation = websocket.ClosePolicyViolation
)

var (
	ErrSocketClosed   = errors.New("socket closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// peerConn wraps one upgraded websocket. Outbound frames go through a
// buffered channel drained by writePump so that a slow peer never blocks
// the router.
type peerConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	open      atomic.Bool
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func newPeerConn(conn *websocket.Conn, limiter *rate.Limiter, logger *slog.Logger) *peerConn {
	c := &peerConn{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: limiter,
		logger:  logger,
	}
	c.open.Store(true)
	return c
}

func (c *peerConn) IsOpen() bool {
	return c.open.Load()
}

// Send queues data for the write pump.
func (c *peerConn) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrSocketClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrSocketClosed
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame with code and reason and tears the socket down.
// Only the first call has any effect.
func (c *peerConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)

		msg := websocket.FormatCloseMessage(code, reason)
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait)); werr != nil &&
			!errors.Is(werr, websocket.ErrCloseSent) {
			c.logger.Debug("close_frame_failed", "error", werr)
		}
		err = c.conn.Close()
	})
	return err
}

// readPump delivers text frames to onFrame until the socket fails or closes.
func (c *peerConn) readPump(maxMessageSize int64, onFrame func([]byte)) {
	if maxMessageSize > 0 {
		c.conn.SetReadLimit(maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket_read_error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(PongWait))

		if messageType != websocket.TextMessage {
			c.logger.Warn("non_text_frame_dropped", "frame_type", messageType)
			continue
		}
		if !c.admit(data) {
			c.logger.Warn("rate_limit_exceeded", "bytes", len(data))
			continue
		}
		onFrame(data)
	}
}

// admit applies the inbound limiter. Heartbeats always pass and spend no tokens.
func (c *peerConn) admit(data []byte) bool {
	if c.limiter == nil || protocol.PeekType(data).IsHeartbeat() {
		return true
	}
	return c.limiter.Allow()
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *peerConn) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("websocket_write_error", "error", err)
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait)); err != nil {
				c.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}
