package logic

import "time"

// Timer is a passive countdown checked by polling.
// An expired timer stays expired until Disable is called.
type Timer struct {
	active   bool
	deadline time.Time
}

// Enable arms the timer to expire d after now, replacing any earlier deadline.
func (t *Timer) Enable(now time.Time, d time.Duration) {
	t.active = true
	t.deadline = now.Add(d)
}

// Disable disarms the timer.
func (t *Timer) Disable() {
	t.active = false
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	return t.active
}

// IsExpired reports whether the timer is armed and now is at or past its deadline.
func (t *Timer) IsExpired(now time.Time) bool {
	return t.active && !now.Before(t.deadline)
}

// Deadline returns the armed deadline (zero if never armed).
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Remaining returns the time left before expiry, or 0 if disarmed or expired.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if !t.active {
		return 0
	}
	if r := t.deadline.Sub(now); r > 0 {
		return r
	}
	return 0
}
