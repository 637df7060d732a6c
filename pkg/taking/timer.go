package taking

import (
	"sync"
	"time"
)

// Clock abstracts time for the exam timer so tests can drive it
// without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper cancels a pending AfterFunc callback.
type Stopper interface {
	Stop() bool
}

// RealClock is the production Clock backed by package time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Timer counts down to an absolute deadline fixed at construction.
// Remaining time is always derived from that deadline, so a laggy or
// suspended client cannot stretch the exam: waking up late means less
// time, not more.
//
// The onTimeUp callback fires at most once, and never after Stop.
type Timer struct {
	deadline time.Time
	clock    Clock

	once    sync.Once
	stopper Stopper
}

// NewTimer starts a timer that fires onTimeUp once limit elapses.
func NewTimer(limit time.Duration, clock Clock, onTimeUp func()) *Timer {
	if clock == nil {
		clock = RealClock{}
	}
	t := &Timer{
		deadline: clock.Now().Add(limit),
		clock:    clock,
	}
	t.stopper = clock.AfterFunc(limit, func() {
		t.once.Do(onTimeUp)
	})
	return t
}

// Deadline returns the absolute end time.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Remaining returns the time left, never negative.
func (t *Timer) Remaining() time.Duration {
	d := t.deadline.Sub(t.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the deadline has passed.
func (t *Timer) Expired() bool {
	return t.Remaining() == 0
}

// Stop cancels the timer. The callback will not fire afterwards, even
// if the AfterFunc had already been scheduled.
func (t *Timer) Stop() {
	t.stopper.Stop()
	t.once.Do(func() {})
}
