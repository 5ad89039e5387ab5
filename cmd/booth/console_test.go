package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/api"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/audio"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/booth"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/recording"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/session"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(t *testing.T) (*console, *testutil.Server, *syncBuffer) {
	t.Helper()

	srv := testutil.NewServer(t)
	logger := testutil.DiscardLogger()

	client, err := api.NewClient(api.Config{BaseURL: srv.URL(), MaxRetries: 0}, nil, logger)
	require.NoError(t, err)

	channel, err := realtime.NewChannel(realtime.Config{URL: srv.WSURL()}, realtime.Hooks{}, nil, logger)
	require.NoError(t, err)
	t.Cleanup(channel.Disconnect)

	out := &syncBuffer{}
	notifier := booth.NewWriterNotifier(out)
	recorder := audio.NewRecorder(&audio.ToneDevice{Amplitude: 8000}, audio.RecorderConfig{Format: audio.DefaultFormat()}, logger)

	b, err := booth.New(client, channel, session.NewStore(nil, nil, logger), recorder, booth.Config{
		Recording: recording.Config{Duration: 200 * time.Millisecond, ProgressInterval: 20 * time.Millisecond},
	}, booth.Options{Notifier: notifier}, logger)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	return &console{booth: b, registry: client, out: out, notifier: notifier}, srv, out
}

func TestConsoleVotingSession(t *testing.T) {
	con, srv, out := newTestConsole(t)
	ctx := context.Background()

	jane := srv.AddMember("Jane Wanjiru", "Westlands", "MP")
	peter := srv.AddMember("Peter Kamau", "Kiambu", "MP")
	motion := srv.AddMotion("Finance Bill", "Treasury", models.MotionPending)

	assert.False(t, con.execute(ctx, "motions"))
	assert.Contains(t, out.String(), "Finance Bill")

	con.execute(ctx, "start "+motion.ID)
	assert.Contains(t, out.String(), "[Voting Started]")

	con.execute(ctx, "next")
	assert.Contains(t, out.String(), "Active: Jane Wanjiru (Westlands)")

	con.execute(ctx, "members")
	lines := strings.Split(out.String(), "\n")
	var janeRow, peterRow string
	for _, line := range lines {
		if strings.HasPrefix(line, jane.ID) {
			janeRow = line
		}
		if strings.HasPrefix(line, peter.ID) {
			peterRow = line
		}
	}
	assert.True(t, strings.HasSuffix(strings.TrimSpace(janeRow), "active"), janeRow)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(peterRow), "waiting"), peterRow)

	con.execute(ctx, "status")
	assert.Contains(t, out.String(), "Voting open on "+motion.ID)

	con.execute(ctx, "stats")
	assert.Contains(t, out.String(), "Total: 0")

	con.execute(ctx, "end")
	assert.Contains(t, out.String(), "[Voting Ended]")
	assert.Contains(t, out.String(), "Final: Total: 0")

	m, ok := srv.Motion(motion.ID)
	require.True(t, ok)
	assert.Equal(t, models.MotionCompleted, m.Status)
}

func TestConsoleErrors(t *testing.T) {
	con, _, out := newTestConsole(t)
	ctx := context.Background()

	con.execute(ctx, "dance")
	assert.Contains(t, out.String(), `! [Error] unknown command "dance", type help`)

	con.execute(ctx, "start")
	assert.Contains(t, out.String(), "! [Error] usage: start <motion-id>")

	con.execute(ctx, "record")
	assert.Contains(t, out.String(), "! [Error]")
}

func TestConsoleEnrollVoicePrint(t *testing.T) {
	con, srv, out := newTestConsole(t)
	ctx := context.Background()

	con.execute(ctx, "add-member Jane Wanjiru | Westlands")
	require.Contains(t, out.String(), "Member Jane Wanjiru registered as ")

	members := srv.Requests(http.MethodPost, "/members")
	assert.Equal(t, 1, members)
	id := strings.TrimSpace(out.String()[strings.LastIndex(out.String(), " ")+1:])
	assert.Empty(t, srv.VoicePrint(id))

	con.execute(ctx, "enroll "+id)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[Voice Print Saved] Voice print saved for Jane Wanjiru")
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, srv.VoicePrint(id))
	assert.NotContains(t, out.String(), "! [Error]")

	con.execute(ctx, "enroll missing")
	assert.Contains(t, out.String(), "! [Error] Member not found")
}

func TestConsoleRegistersMembersAndMotions(t *testing.T) {
	con, srv, out := newTestConsole(t)
	ctx := context.Background()

	con.execute(ctx, "add-member Peter Kamau | Kiambu | Speaker")
	con.execute(ctx, "members")
	assert.Contains(t, out.String(), "Peter Kamau")

	con.execute(ctx, "new-motion Finance Bill 2026 | Treasury | Budget estimates")
	assert.Contains(t, out.String(), `Motion "Finance Bill 2026" created as `)
	con.execute(ctx, "motions")
	assert.Contains(t, out.String(), "Finance Bill 2026")
	assert.Equal(t, 1, srv.Requests(http.MethodPost, "/motions"))

	con.execute(ctx, "add-member Jane Wanjiru")
	assert.Contains(t, out.String(), "! [Error] usage: add-member <name> | <constituency> [| <role>]")
	con.execute(ctx, "new-motion  | Treasury")
	assert.Contains(t, out.String(), "! [Error] usage: new-motion <title> | <proposed by> [| <description>]")
	assert.Equal(t, 1, srv.Requests(http.MethodPost, "/members"))
}

func TestConsoleReset(t *testing.T) {
	con, srv, out := newTestConsole(t)
	ctx := context.Background()
	motion := srv.AddMotion("Finance Bill", "Treasury", models.MotionPending)

	con.execute(ctx, "start "+motion.ID)
	con.execute(ctx, "reset")
	assert.Contains(t, out.String(), "! [Error] voting is already open")

	con.execute(ctx, "end")
	con.execute(ctx, "reset")
	assert.Contains(t, out.String(), "Session reset")
}

func TestFloorPrinter(t *testing.T) {
	var buf bytes.Buffer
	jane := &models.Member{ID: "m-1", Name: "Jane Wanjiru"}
	floor := newFloorPrinter(&buf, session.Snapshot{VotedMembers: []string{"m-0"}})

	floor(session.Snapshot{ActiveMember: jane, VotedMembers: []string{"m-0"}})
	floor(session.Snapshot{VotedMembers: []string{"m-0", "m-1"}})
	// vote announced by another booth
	floor(session.Snapshot{VotedMembers: []string{"m-0", "m-1", "m-2"}})
	floor(session.Snapshot{VotedMembers: []string{}})
	floor(session.Snapshot{VotedMembers: []string{"m-3"}})

	assert.Equal(t, []string{
		"Floor released by Jane Wanjiru",
		"Voted: 2",
		"Voted: 3",
		"Voted: 1",
	}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestConsoleQuit(t *testing.T) {
	con, _, _ := newTestConsole(t)

	assert.False(t, con.execute(context.Background(), "   "))
	assert.True(t, con.execute(context.Background(), "quit"))
	assert.True(t, con.execute(context.Background(), "EXIT"))
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	progress := newProgressPrinter(&buf)

	for _, p := range []float64{0, 5, 19, 20, 45, 61, 99.9, 100} {
		progress(p)
	}
	// A new recording starts over
	progress(0)

	assert.Equal(t, []string{
		"Recording   0%",
		"Recording  20%",
		"Recording  40%",
		"Recording  60%",
		"Recording  80%",
		"Recording 100%",
		"Recording   0%",
	}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}
