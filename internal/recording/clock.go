package recording

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by the Controller
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

// Ticker delivers ticks on C until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer delivers a single tick on C unless stopped first
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock is a Clock backed by the time package
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// ManualClock is a Clock that only moves when Advance is called.
// Like the time package, ticks are dropped when the receiver is behind.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualWaiter
}

type manualWaiter struct {
	clock    *ManualClock
	deadline time.Time
	period   time.Duration // zero for timers
	c        chan time.Time
}

// NewManualClock creates a clock starting at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("recording: non-positive interval for NewTicker")
	}
	return manualTicker{m.add(d, d)}
}

func (m *ManualClock) NewTimer(d time.Duration) Timer {
	return m.add(d, 0)
}

func (m *ManualClock) add(d, period time.Duration) *manualWaiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := &manualWaiter{
		clock:    m,
		deadline: m.now.Add(d),
		period:   period,
		c:        make(chan time.Time, 1),
	}
	m.waiters = append(m.waiters, w)
	return w
}

// Advance moves the clock forward by d, firing every timer and ticker
// whose deadline is reached, in deadline order
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = m.now.Add(d)

	sort.SliceStable(m.waiters, func(i, j int) bool {
		return m.waiters[i].deadline.Before(m.waiters[j].deadline)
	})

	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if w.deadline.After(m.now) {
			kept = append(kept, w)
			continue
		}
		select {
		case w.c <- w.deadline:
		default:
		}
		if w.period == 0 {
			continue
		}
		for !w.deadline.After(m.now) {
			w.deadline = w.deadline.Add(w.period)
		}
		kept = append(kept, w)
	}
	m.waiters = kept
}

// Pending returns the number of timers and tickers still scheduled
func (m *ManualClock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

func (w *manualWaiter) C() <-chan time.Time { return w.c }

func (w *manualWaiter) Stop() bool { return w.remove() }

type manualTicker struct{ w *manualWaiter }

func (t manualTicker) C() <-chan time.Time { return t.w.c }
func (t manualTicker) Stop()               { t.w.remove() }

func (w *manualWaiter) remove() bool {
	m := w.clock
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, other := range m.waiters {
		if other == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return true
		}
	}
	return false
}
