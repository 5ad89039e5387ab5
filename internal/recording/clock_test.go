package recording

import (
	"testing"
	"time"
)

func TestManualClockTimer(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewManualClock(start)
	timer := clock.NewTimer(time.Second)

	clock.Advance(999 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("Timer fired early")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case fired := <-timer.C():
		if !fired.Equal(start.Add(time.Second)) {
			t.Errorf("Expected fire time %v, got %v", start.Add(time.Second), fired)
		}
	default:
		t.Fatal("Timer did not fire")
	}

	if clock.Pending() != 0 {
		t.Errorf("Expected fired timer to be removed, %d pending", clock.Pending())
	}
	if timer.Stop() {
		t.Error("Stop on a fired timer should report false")
	}
}

func TestManualClockTickerDropsMissedTicks(t *testing.T) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	ticker := clock.NewTicker(100 * time.Millisecond)

	clock.Advance(time.Second)

	ticks := 0
	for {
		select {
		case <-ticker.C():
			ticks++
			continue
		default:
		}
		break
	}
	if ticks != 1 {
		t.Errorf("Expected 1 buffered tick, got %d", ticks)
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Error("Stopped ticker fired")
	default:
	}
	if clock.Pending() != 0 {
		t.Errorf("Expected no pending waiters, got %d", clock.Pending())
	}
}
