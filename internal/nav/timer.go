package nav

import "time"

// Timer tracks elapsed real time since its last update. The zero Timer
// (with a clock attached) reports any interval as elapsed, so first-use
// checks pass immediately.
type Timer struct {
	last time.Time
	now  func() time.Time
}

// NewTimer creates a Timer reading time from now. Pass time.Now outside
// of tests.
func NewTimer(now func() time.Time) Timer {
	return Timer{now: now}
}

// Check reports whether at least d has passed since the last Update.
func (t *Timer) Check(d time.Duration) bool {
	return t.now().Sub(t.last) >= d
}

// Update marks the current time as the last event.
func (t *Timer) Update() {
	t.last = t.now()
}

// TestAndSet updates the timer and returns true if d has elapsed,
// otherwise leaves it untouched and returns false.
func (t *Timer) TestAndSet(d time.Duration) bool {
	if !t.Check(d) {
		return false
	}
	t.Update()
	return true
}
