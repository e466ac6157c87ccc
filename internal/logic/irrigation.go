package logic

import "time"

// Irrigation alternates the irrigation pump between an on period and an off
// period. A zero on period disables the cycle.
type Irrigation struct {
	on      time.Duration
	off     time.Duration
	timer   Timer
	running bool
}

// NewIrrigation creates a stopped irrigation cycle.
func NewIrrigation(on, off time.Duration) *Irrigation {
	return &Irrigation{on: on, off: off}
}

// Apply changes the cycle periods. The current period is restarted on the next Tick.
func (i *Irrigation) Apply(on, off time.Duration) {
	i.on = on
	i.off = off
	i.timer.Disable()
}

// Periods returns the configured on and off periods.
func (i *Irrigation) Periods() (on, off time.Duration) {
	return i.on, i.off
}

// Running reports whether the pump should currently be on.
func (i *Irrigation) Running() bool {
	return i.running
}

// Tick advances the cycle and returns the desired pump state and whether it changed.
func (i *Irrigation) Tick(now time.Time) (on bool, changed bool) {
	if i.on <= 0 {
		changed = i.running
		i.running = false
		i.timer.Disable()
		return false, changed
	}
	if i.off <= 0 {
		changed = !i.running
		i.running = true
		i.timer.Disable()
		return true, changed
	}
	if !i.timer.Active() {
		// Start (or restart) with an on period.
		changed = !i.running
		i.running = true
		i.timer.Enable(now, i.on)
		return true, changed
	}
	if !i.timer.IsExpired(now) {
		return i.running, false
	}
	i.running = !i.running
	if i.running {
		i.timer.Enable(now, i.on)
	} else {
		i.timer.Enable(now, i.off)
	}
	return i.running, true
}

// Stop halts the cycle; the next Tick starts a fresh on period.
func (i *Irrigation) Stop() {
	i.running = false
	i.timer.Disable()
}
