package relay

import (
	"testing"
	"time"

	"gfxrelay/internal/logging"
	"gfxrelay/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	registry *Registry
	clock    *clock
	router   *Router
}

func newRouterFixture() *routerFixture {
	r, c := newTestRegistry(time.Minute)
	return &routerFixture{
		registry: r,
		clock:    c,
		router:   NewRouter(r, logging.Discard()),
	}
}

func (f *routerFixture) add(t *testing.T, role string) (string, *fakeSocket) {
	t.Helper()
	sock := newFakeSocket()
	id, err := f.registry.Register(sock, role)
	require.NoError(t, err)
	return id, sock
}

func TestRouter_MainToAllSubs(t *testing.T) {
	f := newRouterFixture()
	mainID, mainSock := f.add(t, "main")
	_, sub1 := f.add(t, "sub")
	_, sub2 := f.add(t, "sub")

	data := frame(t, protocol.CueItemSelected{
		CueItemID:       "c1",
		HandID:          "h1",
		CompositionName: "lower_third",
		HandData:        protocol.HandData{HandNum: 42, SessionID: "s1"},
	})

	result, err := f.router.Route(mainID, protocol.RoleMain, data)
	require.NoError(t, err)

	assert.Equal(t, protocol.TypeCueItemSelected, result.Type)
	assert.Equal(t, 2, result.Targets)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, [][]byte{data}, sub1.Sent())
	assert.Equal(t, [][]byte{data}, sub2.Sent())
	assert.Empty(t, mainSock.Sent())
}

func TestRouter_SubToMain(t *testing.T) {
	f := newRouterFixture()
	_, mainSock := f.add(t, "main")
	subID, _ := f.add(t, "sub")
	_, otherSub := f.add(t, "sub")

	data := frame(t, protocol.RenderComplete{
		JobID:  "j1",
		Output: protocol.RenderOutput{OutputPath: "/renders/j1.mov", Duration: 5, FrameCount: 150},
	})

	result, err := f.router.Route(subID, protocol.RoleSub, data)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, [][]byte{data}, mainSock.Sent())
	assert.Empty(t, otherSub.Sent())
}

func TestRouter_HeartbeatTouchesAndIsAbsorbed(t *testing.T) {
	f := newRouterFixture()
	mainID, _ := f.add(t, "main")
	subID, subSock := f.add(t, "sub")

	f.clock.Advance(20 * time.Second)
	result, err := f.router.Route(mainID, protocol.RoleMain, frame(t, protocol.Heartbeat{MainStatus: protocol.MainConnected}))
	require.NoError(t, err)
	assert.True(t, result.Heartbeat)
	assert.Equal(t, 0, result.Delivered)
	assert.Empty(t, subSock.Sent())

	peer, _ := f.registry.Get(mainID)
	assert.Equal(t, f.clock.Now(), peer.LastHeartbeatAt)

	f.clock.Advance(20 * time.Second)
	result, err = f.router.Route(subID, protocol.RoleSub, frame(t, protocol.HeartbeatAck{SubStatus: protocol.SubReady}))
	require.NoError(t, err)
	assert.True(t, result.Heartbeat)

	peer, _ = f.registry.Get(subID)
	assert.Equal(t, f.clock.Now(), peer.LastHeartbeatAt)
}

func TestRouter_NoTargets(t *testing.T) {
	f := newRouterFixture()
	mainID, _ := f.add(t, "main")

	result, err := f.router.Route(mainID, protocol.RoleMain, frame(t, protocol.CueItemCancelled{CueItemID: "c1"}))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Targets)
	assert.Equal(t, 0, result.Delivered)
}

func TestRouter_MalformedFrameIsDropped(t *testing.T) {
	f := newRouterFixture()
	mainID, _ := f.add(t, "main")
	_, subSock := f.add(t, "sub")

	for _, raw := range []string{
		`not json`,
		`{"type":"bogus","payload":{},"timestamp":"2026-10-19T09:30:00.000Z"}`,
		`{"type":"cue_item_selected","timestamp":"2026-10-19T09:30:00.000Z"}`,
		`{"type":"cue_item_selected","payload":{}}`,
	} {
		_, err := f.router.Route(mainID, protocol.RoleMain, []byte(raw))
		assert.ErrorIs(t, err, protocol.ErrMalformed, raw)
	}
	assert.Empty(t, subSock.Sent())
}

func TestRouter_WrongDirectionIsRejected(t *testing.T) {
	f := newRouterFixture()
	_, mainSock := f.add(t, "main")
	subID, _ := f.add(t, "sub")
	_, otherSub := f.add(t, "sub")

	_, err := f.router.Route(subID, protocol.RoleSub, frame(t, protocol.CueItemCancelled{CueItemID: "c1"}))
	assert.ErrorIs(t, err, protocol.ErrWrongDirection)
	assert.Empty(t, mainSock.Sent())
	assert.Empty(t, otherSub.Sent())
}

func TestRouter_SendFailureDoesNotStopFanOut(t *testing.T) {
	f := newRouterFixture()
	mainID, _ := f.add(t, "main")
	_, broken := f.add(t, "sub")
	_, healthy := f.add(t, "sub")
	broken.sendErr = errBrokenPipe

	data := frame(t, protocol.SessionChanged{SessionID: "s2", GameType: protocol.GameTournament})
	result, err := f.router.Route(mainID, protocol.RoleMain, data)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Targets)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, [][]byte{data}, healthy.Sent())
}

func TestRouter_ClosedTargetIsSkipped(t *testing.T) {
	f := newRouterFixture()
	mainID, _ := f.add(t, "main")
	_, gone := f.add(t, "sub")
	gone.Close(CloseNormalClosure, "")

	result, err := f.router.Route(mainID, protocol.RoleMain, frame(t, protocol.CueItemCancelled{CueItemID: "c1"}))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Targets)
}
