package booth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
)

// EventSource delivers server-pushed events
type EventSource interface {
	Subscribe(event string, handler realtime.Handler) (unsubscribe func())
}

// StatisticsSource fetches the aggregate statistics of a motion
type StatisticsSource interface {
	GetStatistics(ctx context.Context, motionID string) (*models.VoteStatistics, error)
}

// StatsWatcher keeps the statistics of one motion current. Every
// voteUpdate for the watched motion triggers a refetch; updates for other
// motions are ignored. Bursts of updates collapse into a single fetch.
type StatsWatcher struct {
	events   EventSource
	source   StatisticsSource
	motionID string
	timeout  time.Duration
	onUpdate func(models.VoteStatistics)
	logger   *slog.Logger

	latest  *models.VoteStatistics
	fetches int
	mu      sync.RWMutex

	refresh     chan struct{}
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	stopOnce    sync.Once
}

// NewStatsWatcher creates a watcher for motionID. onUpdate may be nil.
func NewStatsWatcher(events EventSource, source StatisticsSource, motionID string, onUpdate func(models.VoteStatistics), logger *slog.Logger) *StatsWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsWatcher{
		events:   events,
		source:   source,
		motionID: motionID,
		timeout:  10 * time.Second,
		onUpdate: onUpdate,
		logger:   logger,
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start subscribes to voteUpdate and performs the initial fetch in the
// background
func (w *StatsWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.unsubscribe = w.events.Subscribe(realtime.EventVoteUpdate, w.handleUpdate)

	go w.loop(ctx)
	w.Refresh()
}

// Stop unsubscribes and waits for an in-flight fetch to finish
func (w *StatsWatcher) Stop() {
	w.stopOnce.Do(func() {
		if w.unsubscribe != nil {
			w.unsubscribe()
		}
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
	})
}

// MotionID returns the watched motion
func (w *StatsWatcher) MotionID() string {
	return w.motionID
}

// Refresh schedules a refetch
func (w *StatsWatcher) Refresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

// Latest returns the most recent statistics, or nil before the first fetch
func (w *StatsWatcher) Latest() *models.VoteStatistics {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.latest == nil {
		return nil
	}
	stats := *w.latest
	return &stats
}

// Fetches returns the number of successful fetches
func (w *StatsWatcher) Fetches() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fetches
}

func (w *StatsWatcher) handleUpdate(data json.RawMessage) {
	update, err := realtime.DecodeVoteUpdate(data)
	if err != nil {
		w.logger.Warn("Ignoring malformed voteUpdate", slog.String("error", err.Error()))
		return
	}
	if update.MotionID != w.motionID {
		return
	}
	w.Refresh()
}

func (w *StatsWatcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-w.refresh:
			w.fetch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *StatsWatcher) fetch(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	stats, err := w.source.GetStatistics(fetchCtx, w.motionID)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("Failed to fetch vote statistics",
				slog.String("motion_id", w.motionID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	w.mu.Lock()
	w.latest = stats
	w.fetches++
	w.mu.Unlock()

	w.logger.Debug("Vote statistics updated",
		slog.String("motion_id", w.motionID),
		slog.Int("total", stats.Total),
		slog.Int("yes", stats.Yes),
		slog.Int("no", stats.No),
	)
	if w.onUpdate != nil {
		w.onUpdate(*stats)
	}
}

// FormatStatistics renders statistics on one line. Participation is shown
// only when the backend reported the member total.
func FormatStatistics(stats models.VoteStatistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d | Yes: %d (%.1f%%) | No: %d (%.1f%%)",
		stats.Total,
		stats.Yes, stats.YesPercentage(),
		stats.No, stats.NoPercentage(),
	)
	if pct, ok := stats.Participation(); ok {
		fmt.Fprintf(&b, " | Participation: %.1f%%", pct)
	}
	return b.String()
}
