package booth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/api"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
)

// fakeEvents dispatches events synchronously to subscribers
type fakeEvents struct {
	mu       sync.Mutex
	handlers map[string][]realtime.Handler
}

func (f *fakeEvents) Subscribe(event string, handler realtime.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string][]realtime.Handler)
	}
	f.handlers[event] = append(f.handlers[event], handler)
	idx := len(f.handlers[event]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[event][idx] = nil
	}
}

func (f *fakeEvents) fire(t *testing.T, event string, payload any) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	f.mu.Lock()
	handlers := append([]realtime.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(data)
		}
	}
}

// countingSource returns statistics whose total is the call count
type countingSource struct {
	mu     sync.Mutex
	calls  map[string]int
	failed bool
}

func (s *countingSource) GetStatistics(ctx context.Context, motionID string) (*models.VoteStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[motionID]++
	if s.failed {
		return nil, errors.New("backend down")
	}
	return &models.VoteStatistics{Total: s.calls[motionID], Yes: s.calls[motionID]}, nil
}

func (s *countingSource) count(motionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[motionID]
}

func TestStatsWatcherFiltersByMotion(t *testing.T) {
	events := &fakeEvents{}
	source := &countingSource{}
	updates := make(chan models.VoteStatistics, 8)

	w := NewStatsWatcher(events, source, "motion-1", func(s models.VoteStatistics) { updates <- s }, nil)
	w.Start(context.Background())
	defer w.Stop()

	select {
	case s := <-updates:
		assert.Equal(t, 1, s.Total, "initial fetch")
	case <-time.After(time.Second):
		t.Fatal("No initial fetch")
	}

	events.fire(t, realtime.EventVoteUpdate, realtime.VoteUpdate{MotionID: "motion-2"})
	events.fire(t, realtime.EventVoteUpdate, realtime.VoteUpdate{MotionID: "motion-1"})

	select {
	case s := <-updates:
		assert.Equal(t, 2, s.Total)
	case <-time.After(time.Second):
		t.Fatal("voteUpdate for the watched motion did not refetch")
	}

	assert.Equal(t, 0, source.count("motion-2"), "other motions are never fetched")
	assert.Equal(t, 2, w.Fetches())
	require.NotNil(t, w.Latest())
	assert.Equal(t, 2, w.Latest().Total)
}

func TestStatsWatcherStopUnsubscribes(t *testing.T) {
	events := &fakeEvents{}
	source := &countingSource{}

	w := NewStatsWatcher(events, source, "motion-1", nil, nil)
	w.Start(context.Background())
	require.Eventually(t, func() bool { return w.Fetches() == 1 }, time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()

	events.fire(t, realtime.EventVoteUpdate, realtime.VoteUpdate{MotionID: "motion-1"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, source.count("motion-1"))
}

func TestStatsWatcherKeepsLastOnFailure(t *testing.T) {
	events := &fakeEvents{}
	source := &countingSource{}

	w := NewStatsWatcher(events, source, "motion-1", nil, nil)
	w.Start(context.Background())
	defer w.Stop()
	require.Eventually(t, func() bool { return w.Fetches() == 1 }, time.Second, 5*time.Millisecond)

	source.mu.Lock()
	source.failed = true
	source.mu.Unlock()

	w.Refresh()
	require.Eventually(t, func() bool { return source.count("motion-1") == 2 }, time.Second, 5*time.Millisecond)

	require.NotNil(t, w.Latest())
	assert.Equal(t, 1, w.Latest().Total)
}

func TestStatsWatcherIgnoresMalformedUpdate(t *testing.T) {
	events := &fakeEvents{}
	source := &countingSource{}

	w := NewStatsWatcher(events, source, "motion-1", nil, nil)
	w.Start(context.Background())
	defer w.Stop()
	require.Eventually(t, func() bool { return w.Fetches() == 1 }, time.Second, 5*time.Millisecond)

	events.fire(t, realtime.EventVoteUpdate, "not an object")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, source.count("motion-1"))
}

func TestFormatStatistics(t *testing.T) {
	total := 10
	tests := []struct {
		name  string
		stats models.VoteStatistics
		want  string
	}{
		{
			name:  "without member total",
			stats: models.VoteStatistics{Total: 4, Yes: 3, No: 1},
			want:  "Total: 4 | Yes: 3 (75.0%) | No: 1 (25.0%)",
		},
		{
			name:  "with member total",
			stats: models.VoteStatistics{Total: 4, Yes: 3, No: 1, TotalMembers: &total},
			want:  "Total: 4 | Yes: 3 (75.0%) | No: 1 (25.0%) | Participation: 40.0%",
		},
		{
			name:  "no votes",
			stats: models.VoteStatistics{},
			want:  "Total: 0 | Yes: 0 (0.0%) | No: 0 (0.0%)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatStatistics(tt.stats))
		})
	}
}

func TestVoteSummary(t *testing.T) {
	res := &api.CastVoteResult{Vote: models.Vote{Vote: models.ChoiceYes}}
	assert.Equal(t, "Vote: yes", VoteSummary(res))

	res.Verification = &models.Verification{Confidence: 0.8734}
	assert.Equal(t, "Vote: yes (Confidence: 87.3%)", VoteSummary(res))
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := MultiNotifier(NewWriterNotifier(&buf), nil)

	n.Notify(Info("Vote Recorded", "Vote: yes"))
	n.Notify(Error("Failed to process vote"))

	assert.Equal(t, "[Vote Recorded] Vote: yes\n! [Error] Failed to process vote\n", buf.String())
}

func TestNotifierFunc(t *testing.T) {
	var got []Notification
	var n Notifier = NotifierFunc(func(note Notification) { got = append(got, note) })

	n.Notify(Error("boom"))
	require.Len(t, got, 1)
	assert.Equal(t, LevelError, got[0].Level)
}
