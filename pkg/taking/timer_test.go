package taking

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock lets tests move time by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return !t.fired
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires every due, unstopped timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func TestTimerRemainingTracksDeadline(t *testing.T) {
	clock := newFakeClock()
	timer := NewTimer(10*time.Minute, clock, func() {})

	if got := timer.Remaining(); got != 10*time.Minute {
		t.Fatalf("remaining = %v, want 10m", got)
	}

	clock.Advance(4 * time.Minute)
	if got := timer.Remaining(); got != 6*time.Minute {
		t.Fatalf("remaining after 4m = %v, want 6m", got)
	}

	clock.Advance(10 * time.Minute)
	if got := timer.Remaining(); got != 0 {
		t.Fatalf("remaining past deadline = %v, want 0", got)
	}
	if !timer.Expired() {
		t.Fatal("timer should be expired")
	}
}

func TestTimerFiresExactlyOnce(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	NewTimer(time.Minute, clock, func() { fired.Add(1) })

	clock.Advance(2 * time.Minute)
	clock.Advance(2 * time.Minute)

	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
}

func TestTimerStopPreventsFiring(t *testing.T) {
	clock := newFakeClock()
	var fired atomic.Int32
	timer := NewTimer(time.Minute, clock, func() { fired.Add(1) })

	timer.Stop()
	clock.Advance(5 * time.Minute)

	if got := fired.Load(); got != 0 {
		t.Fatalf("fired %d times after Stop, want 0", got)
	}
}

func TestTimerSuspendedClientGetsNoExtraTime(t *testing.T) {
	clock := newFakeClock()
	timer := NewTimer(30*time.Minute, clock, func() {})

	// Simulate a laptop lid close: a long gap with no ticks observed.
	clock.Advance(29 * time.Minute)

	// Waking up, the remaining time reflects the absolute deadline.
	if got := timer.Remaining(); got != time.Minute {
		t.Fatalf("remaining after suspend = %v, want 1m", got)
	}
}
