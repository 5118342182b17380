package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gfxrelay/internal/logging"
	"gfxrelay/internal/protocol"

	"github.com/stretchr/testify/require"
)

type closeCall struct {
	code   int
	reason string
}

// fakeSocket records what the registry and router do to a peer.
type fakeSocket struct {
	mu      sync.Mutex
	closed  bool
	sent    [][]byte
	closes  []closeCall
	sendErr error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{}
}

func (f *fakeSocket) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrSocketClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSocket) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closes = append(f.closes, closeCall{code: code, reason: reason})
	return nil
}

func (f *fakeSocket) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeSocket) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeSocket) Closes() []closeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]closeCall(nil), f.closes...)
}

var errBrokenPipe = errors.New("broken pipe")

// clock is a settable time source for the registry.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(timeout time.Duration) (*Registry, *clock) {
	c := &clock{now: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)}
	r := NewRegistry(timeout, logging.Discard())
	r.now = c.Now
	return r, c
}

func frame(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	env, err := protocol.NewEnvelope(msg, time.Now())
	require.NoError(t, err)
	data, err := env.ToJSON()
	require.NoError(t, err)
	return data
}
