package peer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gfxrelay/internal/logging"
	"gfxrelay/internal/microservices/relay"
	"gfxrelay/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T) *relay.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opts := relay.DefaultOptions()
	opts.Host = "127.0.0.1"
	opts.Port = 0
	s := relay.NewServer(opts, logging.Discard(), nil)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func relayURL(s *relay.Server) string {
	return "ws://" + s.Addr() + relay.DashboardPath
}

func waitRelayClients(t *testing.T, s *relay.Server, main, sub int) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.MainClients == main && st.SubClients == sub
	}, 2*time.Second, 5*time.Millisecond)
}

type subInbox struct {
	mu       sync.Mutex
	selected []protocol.CueItemSelected
	requests []protocol.RenderRequest
}

type mainInbox struct {
	mu       sync.Mutex
	complete []protocol.RenderComplete
	errs     []protocol.RenderError
}

func TestRelay_MainToSubAndBack(t *testing.T) {
	s := startRelay(t)

	m := newTestMain(t, fastOptions(relayURL(s)))
	sub1 := newTestSub(t, fastOptions(relayURL(s)))
	sub2 := newTestSub(t, fastOptions(relayURL(s)))

	inboxes := []*subInbox{{}, {}}
	for i, sub := range []*SubClient{sub1, sub2} {
		in := inboxes[i]
		sub.Subscribe(protocol.MainToSubFuncs{
			CueItemSelected: func(p protocol.CueItemSelected) error {
				in.mu.Lock()
				in.selected = append(in.selected, p)
				in.mu.Unlock()
				return nil
			},
			RenderRequest: func(p protocol.RenderRequest) error {
				in.mu.Lock()
				in.requests = append(in.requests, p)
				in.mu.Unlock()
				return nil
			},
		})
		sub.Connect()
	}

	mainIn := &mainInbox{}
	m.Subscribe(protocol.SubToMainFuncs{
		RenderComplete: func(p protocol.RenderComplete) error {
			mainIn.mu.Lock()
			mainIn.complete = append(mainIn.complete, p)
			mainIn.mu.Unlock()
			return nil
		},
		RenderError: func(p protocol.RenderError) error {
			mainIn.mu.Lock()
			mainIn.errs = append(mainIn.errs, p)
			mainIn.mu.Unlock()
			return nil
		},
	})
	m.Connect()

	waitConnected(t, m)
	waitConnected(t, sub1)
	waitConnected(t, sub2)
	waitRelayClients(t, s, 1, 2)

	cue := protocol.CueItemSelected{
		CueItemID:       "cue-1",
		HandID:          "hand-42",
		CompositionName: "chip_leader",
		HandData: protocol.HandData{
			HandNum:   42,
			SessionID: "s1",
			Players:   []protocol.PlayerData{{Position: 1, PlayerName: "Kim", StackAmount: 125000, BBs: 62.5}},
			Pot:       30000,
		},
	}
	require.NoError(t, m.SendCueItemSelected(cue))
	requestID, err := m.SendRenderRequest(protocol.RenderRequest{CompositionName: "chip_leader", HandID: "hand-42", Priority: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	for _, in := range inboxes {
		require.Eventually(t, func() bool {
			in.mu.Lock()
			defer in.mu.Unlock()
			return len(in.selected) == 1 && len(in.requests) == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, cue, in.selected[0])
		assert.Equal(t, requestID, in.requests[0].RequestID)
	}

	require.NoError(t, sub1.SendRenderComplete(protocol.RenderComplete{
		JobID:     "job-1",
		RequestID: requestID,
		Output:    protocol.RenderOutput{OutputPath: "/out/job-1.mov", Duration: 4.5, FrameCount: 135, FileSize: 1 << 20},
	}))
	require.NoError(t, sub2.SendRenderError(protocol.RenderError{
		JobID:        "job-2",
		ErrorCode:    protocol.ErrCodeCompositionNotFound,
		ErrorMessage: "missing comp",
	}))

	require.Eventually(t, func() bool {
		mainIn.mu.Lock()
		defer mainIn.mu.Unlock()
		return len(mainIn.complete) == 1 && len(mainIn.errs) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "job-1", mainIn.complete[0].JobID)
	assert.Equal(t, protocol.ErrCodeCompositionNotFound, mainIn.errs[0].ErrorCode)
}

func TestRelay_SubscribeHandlerErrorReachesErrorHandlers(t *testing.T) {
	s := startRelay(t)

	m := newTestMain(t, fastOptions(relayURL(s)))
	sub := newTestSub(t, fastOptions(relayURL(s)))
	ev := watch(sub.Client)

	errRejected := errors.New("rejected")
	sub.Subscribe(protocol.MainToSubFuncs{
		CueItemCancelled: func(protocol.CueItemCancelled) error { return errRejected },
	})

	m.Connect()
	sub.Connect()
	waitConnected(t, m)
	waitConnected(t, sub)
	waitRelayClients(t, s, 1, 1)

	require.NoError(t, m.SendCueItemCancelled("cue-9"))
	require.Eventually(t, func() bool { return ev.count(errRejected) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, sub.IsConnected())
}

func TestRelay_DisconnectUpdatesRelayCounts(t *testing.T) {
	s := startRelay(t)

	m := newTestMain(t, fastOptions(relayURL(s)))
	m.Connect()
	waitConnected(t, m)
	waitRelayClients(t, s, 1, 0)

	m.Disconnect()
	waitRelayClients(t, s, 0, 0)
}
