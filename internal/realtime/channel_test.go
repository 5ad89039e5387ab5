package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/testutil"
)

const waitTimeout = 2 * time.Second

// hookLog collects lifecycle callbacks
type hookLog struct {
	mu            sync.Mutex
	connects      []bool
	disconnects   []error
	connectErrors int
}

func (l *hookLog) hooks() realtime.Hooks {
	return realtime.Hooks{
		OnConnect: func(reconnected bool) {
			l.mu.Lock()
			l.connects = append(l.connects, reconnected)
			l.mu.Unlock()
		},
		OnDisconnect: func(err error) {
			l.mu.Lock()
			l.disconnects = append(l.disconnects, err)
			l.mu.Unlock()
		},
		OnConnectError: func(err error) {
			l.mu.Lock()
			l.connectErrors++
			l.mu.Unlock()
		},
	}
}

func (l *hookLog) snapshot() ([]bool, []error, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.connects...), append([]error(nil), l.disconnects...), l.connectErrors
}

func connect(t *testing.T, srv *testutil.Server, hooks realtime.Hooks) *realtime.Channel {
	t.Helper()

	ch, err := realtime.NewChannel(realtime.Config{
		URL:               srv.WSURL(),
		ReconnectInterval: 20 * time.Millisecond,
	}, hooks, nil, testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(ch.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, ch.Connect(ctx))
	require.True(t, ch.Connected())
	return ch
}

func joinAndWait(t *testing.T, srv *testutil.Server, ch *realtime.Channel, motionID string) {
	t.Helper()
	require.NoError(t, ch.JoinMotion(motionID))
	require.True(t, srv.Hub().WaitFor(waitTimeout, func(h *testutil.HubState) bool {
		return h.RoomSize(motionID) == 1
	}), "client never joined room %s", motionID)
}

func TestNewChannelRequiresURL(t *testing.T) {
	_, err := realtime.NewChannel(realtime.Config{}, realtime.Hooks{}, nil, nil)
	assert.Error(t, err)
}

func TestEmitWhileDisconnected(t *testing.T) {
	ch, err := realtime.NewChannel(realtime.Config{URL: "ws://127.0.0.1:1/ws"}, realtime.Hooks{}, nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, ch.Emit(realtime.EventVoteComplete, "m-1"), realtime.ErrNotConnected)
	assert.False(t, ch.Connected())

	// Rooms joined offline are remembered
	require.NoError(t, ch.JoinMotion("motion-1"))
	assert.Equal(t, []string{"motion-1"}, ch.Rooms())
	assert.Error(t, ch.JoinMotion(""))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv := testutil.NewServer(t)
	ch := connect(t, srv, realtime.Hooks{})
	joinAndWait(t, srv, ch, "motion-1")

	first := make(chan realtime.VoteUpdate, 4)
	unsubscribe := ch.Subscribe(realtime.EventVoteUpdate, func(data json.RawMessage) {
		update, err := realtime.DecodeVoteUpdate(data)
		if err == nil {
			first <- update
		}
	})

	require.Equal(t, 1, srv.Hub().Broadcast("motion-1", realtime.EventVoteUpdate, realtime.VoteUpdate{MotionID: "motion-1"}))
	select {
	case update := <-first:
		assert.Equal(t, "motion-1", update.MotionID)
	case <-time.After(waitTimeout):
		t.Fatal("Subscriber never received voteUpdate")
	}

	unsubscribe()
	unsubscribe()

	second := make(chan struct{}, 4)
	ch.Subscribe(realtime.EventVoteUpdate, func(json.RawMessage) { second <- struct{}{} })

	srv.Hub().Broadcast("motion-1", realtime.EventVoteUpdate, realtime.VoteUpdate{MotionID: "motion-1"})
	select {
	case <-second:
	case <-time.After(waitTimeout):
		t.Fatal("Remaining subscriber never received voteUpdate")
	}

	// Delivery is sequential, so the removed handler would have run by now
	assert.Empty(t, first, "unsubscribed handler must not be invoked")
}

func TestJoinAndLeaveMotion(t *testing.T) {
	srv := testutil.NewServer(t)
	ch := connect(t, srv, realtime.Hooks{})

	joinAndWait(t, srv, ch, "motion-1")
	assert.Equal(t, []string{"motion-1"}, ch.Rooms())

	require.NoError(t, ch.LeaveMotion("motion-1"))
	require.True(t, srv.Hub().WaitFor(waitTimeout, func(h *testutil.HubState) bool {
		return h.RoomSize("motion-1") == 0 && h.Received(realtime.EventLeaveMotion) == 1
	}))
	assert.Empty(t, ch.Rooms())

	// Events for a room we left are not delivered
	assert.Equal(t, 0, srv.Hub().Broadcast("motion-1", realtime.EventVoteUpdate, realtime.VoteUpdate{MotionID: "motion-1"}))
}

func TestEmitReachesServer(t *testing.T) {
	srv := testutil.NewServer(t)
	ch := connect(t, srv, realtime.Hooks{})

	require.NoError(t, ch.Emit(realtime.EventVoteComplete, "member-7"))
	require.True(t, srv.Hub().WaitFor(waitTimeout, func(h *testutil.HubState) bool {
		return h.Received(realtime.EventVoteComplete) == 1
	}))

	frames := srv.Hub().Received(realtime.EventVoteComplete)
	require.Len(t, frames, 1)
	memberID, err := realtime.DecodeString(frames[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "member-7", memberID)
}

func TestVoteCompleteRelayedToPeers(t *testing.T) {
	srv := testutil.NewServer(t)
	sender := connect(t, srv, realtime.Hooks{})
	receiver := connect(t, srv, realtime.Hooks{})

	require.NoError(t, sender.JoinMotion("motion-1"))
	require.NoError(t, receiver.JoinMotion("motion-1"))
	require.True(t, srv.Hub().WaitFor(waitTimeout, func(h *testutil.HubState) bool {
		return h.RoomSize("motion-1") == 2
	}))

	got := make(chan string, 1)
	receiver.Subscribe(realtime.EventVoteComplete, func(data json.RawMessage) {
		if id, err := realtime.DecodeString(data); err == nil {
			got <- id
		}
	})

	require.NoError(t, sender.Emit(realtime.EventVoteComplete, "member-3"))
	select {
	case id := <-got:
		assert.Equal(t, "member-3", id)
	case <-time.After(waitTimeout):
		t.Fatal("Peer never received voteComplete")
	}
}

func TestReconnectRejoinsRooms(t *testing.T) {
	srv := testutil.NewServer(t)
	log := &hookLog{}
	ch := connect(t, srv, log.hooks())
	joinAndWait(t, srv, ch, "motion-1")

	srv.Hub().DropAll()

	require.True(t, srv.Hub().WaitFor(waitTimeout, func(h *testutil.HubState) bool {
		return h.Connects() == 2 && h.RoomSize("motion-1") == 1
	}), "channel did not reconnect and re-join")
	require.Eventually(t, func() bool {
		connects, _, _ := log.snapshot()
		return len(connects) == 2
	}, waitTimeout, 5*time.Millisecond)
	assert.True(t, ch.Connected())

	connects, disconnects, _ := log.snapshot()
	assert.Equal(t, []bool{false, true}, connects)
	require.Len(t, disconnects, 1)
	assert.Error(t, disconnects[0], "abrupt drop reports an error")

	// Subscriptions survive the reconnect
	got := make(chan struct{}, 1)
	ch.Subscribe(realtime.EventVoteUpdate, func(json.RawMessage) { got <- struct{}{} })
	srv.Hub().Broadcast("motion-1", realtime.EventVoteUpdate, realtime.VoteUpdate{MotionID: "motion-1"})
	select {
	case <-got:
	case <-time.After(waitTimeout):
		t.Fatal("No delivery after reconnect")
	}
	assert.Len(t, srv.Hub().Received(realtime.EventJoinMotion), 2, "one join per connection")
}

func TestDisconnectIsClean(t *testing.T) {
	srv := testutil.NewServer(t)
	log := &hookLog{}
	ch := connect(t, srv, log.hooks())

	ch.Disconnect()
	ch.Disconnect()

	assert.False(t, ch.Connected())
	assert.ErrorIs(t, ch.Emit(realtime.EventVoteComplete, "m"), realtime.ErrNotConnected)
	require.True(t, srv.Hub().WaitFor(waitTimeout, func(h *testutil.HubState) bool {
		return h.Clients() == 0
	}))

	_, disconnects, _ := log.snapshot()
	require.Len(t, disconnects, 1)
	assert.NoError(t, disconnects[0])
	assert.Equal(t, 1, srv.Hub().Connects(), "no redial after Disconnect")
}

func TestConnectTimesOutAndKeepsRetrying(t *testing.T) {
	dead := httptest.NewServer(nil)
	url := "ws" + dead.URL[len("http"):] + "/ws"
	dead.Close()

	log := &hookLog{}
	ch, err := realtime.NewChannel(realtime.Config{
		URL:               url,
		ReconnectInterval: 10 * time.Millisecond,
	}, log.hooks(), nil, testutil.DiscardLogger())
	require.NoError(t, err)
	defer ch.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = ch.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.Eventually(t, func() bool {
		_, _, n := log.snapshot()
		return n >= 2
	}, waitTimeout, 5*time.Millisecond, "loop keeps redialing after Connect gives up")
}
