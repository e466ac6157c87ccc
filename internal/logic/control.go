package logic

import "time"

// band holds the debounced threshold state shared by both controller variants.
type band struct {
	name     string
	settings Settings
	active   bool
	count    int
}

// Name identifies the controlled channel.
func (b *band) Name() string { return b.name }

// Enabled reports whether the controller acts on readings.
func (b *band) Enabled() bool { return b.settings.Enabled }

// Active reports whether the controller is currently acting.
func (b *band) Active() bool { return b.active }

// Settings returns the current settings.
func (b *band) Settings() Settings { return b.settings }

// Confirmations returns the consecutive out-of-range count.
func (b *band) Confirmations() int { return b.count }

func (b *band) required() int {
	if b.settings.Confirmations < 1 {
		return 1
	}
	return b.settings.Confirmations
}

// Target returns the setpoint in effect for the given time of day.
func (b *band) Target(daytime bool) float64 {
	if b.settings.DayNight && !daytime {
		return b.settings.NightTarget
	}
	return b.settings.Target
}

// check records one reading. It returns the correction once the required
// number of consecutive out-of-range readings has been seen.
func (b *band) check(value float64, daytime bool) Action {
	target := b.Target(daytime)
	under := value < target-b.settings.Margin
	over := value > target+b.settings.Margin

	if !under && !over {
		b.count = 0
		return None
	}

	b.count++
	if b.count < b.required() {
		return None
	}
	b.count = 0
	b.active = true
	if over {
		return DoseDown
	}
	return DoseUp
}

// Threshold is a simple on/off controller. Active is momentary: it is set by
// the evaluation that triggers and cleared by the next one.
type Threshold struct {
	band
}

// NewThreshold creates a threshold controller.
func NewThreshold(name string, s Settings) *Threshold {
	return &Threshold{band: band{name: name, settings: s}}
}

// Evaluate runs one control step. See Controller.
func (t *Threshold) Evaluate(value float64, daytime bool) Action {
	if !t.settings.Enabled {
		return None
	}
	act := t.check(value, daytime)
	if act == None {
		t.active = false
	}
	return act
}

// Enable turns the controller on.
func (t *Threshold) Enable() {
	t.settings.Enabled = true
}

// Disable turns the controller off and clears all detection state.
func (t *Threshold) Disable() {
	t.settings.Enabled = false
	t.active = false
	t.count = 0
}

// Apply replaces the settings; they take effect on the next evaluation.
func (t *Threshold) Apply(s Settings) {
	t.settings = s
	if !s.Enabled {
		t.Disable()
	}
}

// Doser is a controller whose correction is a timed dose followed by a
// mandatory wait. No new confirmations are recorded while either timer is armed.
type Doser struct {
	band
	dose         DoseSettings
	samplePeriod time.Duration
	doseTimer    Timer
	waitTimer    Timer
}

// NewDoser creates a doser. samplePeriod is the control tick period; the wait
// after a dose is shortened by one debounce cycle worth of samples.
func NewDoser(name string, s Settings, d DoseSettings, samplePeriod time.Duration) *Doser {
	return &Doser{
		band:         band{name: name, settings: s},
		dose:         normalizeDose(d),
		samplePeriod: samplePeriod,
	}
}

func normalizeDose(d DoseSettings) DoseSettings {
	if d.Percentage < 0 {
		d.Percentage = 0
	}
	if d.Percentage > 1 {
		d.Percentage = 1
	}
	return d
}

// Evaluate runs one control step. See Controller.
func (d *Doser) Evaluate(value float64, daytime bool) Action {
	if !d.settings.Enabled {
		return None
	}
	if d.doseTimer.Active() || d.waitTimer.Active() {
		return None
	}
	// An in-band reading that breaks a confirmation run clears active. Outside
	// a run active is owned by the dose sequence and cleared by Advance.
	inRun := d.count > 0
	act := d.check(value, daytime)
	if act == None && inRun && d.count == 0 {
		d.active = false
	}
	return act
}

// Enable turns the controller on.
func (d *Doser) Enable() {
	d.settings.Enabled = true
}

// Disable turns the controller off, disarms both timers and clears detection state.
func (d *Doser) Disable() {
	d.settings.Enabled = false
	d.active = false
	d.count = 0
	d.doseTimer.Disable()
	d.waitTimer.Disable()
}

// Apply replaces the shared settings; they take effect on the next evaluation.
func (d *Doser) Apply(s Settings) {
	d.settings = s
	if !s.Enabled {
		d.Disable()
	}
}

// ApplyDose replaces the dose timings. A dose already in progress keeps its deadline.
func (d *Doser) ApplyDose(ds DoseSettings) {
	d.dose = normalizeDose(ds)
}

// DoseSettings returns the current dose timings.
func (d *Doser) DoseSettings() DoseSettings {
	return d.dose
}

// DoseDuration is the pump run time of one dose.
func (d *Doser) DoseDuration() time.Duration {
	return time.Duration(float64(d.dose.DoseDuration) * d.dose.Percentage)
}

// WaitDuration is the wait armed after a dose, leaving room for the next
// debounce cycle inside the nominal wait window.
func (d *Doser) WaitDuration() time.Duration {
	w := d.dose.WaitDuration - time.Duration(d.required())*d.samplePeriod
	if w < 0 {
		return 0
	}
	return w
}

// StartDose arms the dose timer and returns the pump run time.
func (d *Doser) StartDose(now time.Time) time.Duration {
	dur := d.DoseDuration()
	d.waitTimer.Disable()
	d.doseTimer.Enable(now, dur)
	return dur
}

// Advance moves the dosing sequence forward: an expired dose starts the wait,
// an expired wait returns the doser to normal evaluation. It reports the
// phase after the call and whether it changed.
func (d *Doser) Advance(now time.Time) (Phase, bool) {
	if d.doseTimer.IsExpired(now) {
		d.doseTimer.Disable()
		d.waitTimer.Enable(now, d.WaitDuration())
		return PhaseWaiting, true
	}
	if d.waitTimer.IsExpired(now) {
		d.waitTimer.Disable()
		d.active = false
		return PhaseIdle, true
	}
	return d.Phase(), false
}

// Phase returns the current dosing phase.
func (d *Doser) Phase() Phase {
	switch {
	case d.doseTimer.Active():
		return PhaseDosing
	case d.waitTimer.Active():
		return PhaseWaiting
	default:
		return PhaseIdle
	}
}

// DoseTimer exposes the dose timer for inspection.
func (d *Doser) DoseTimer() *Timer { return &d.doseTimer }

// WaitTimer exposes the wait timer for inspection.
func (d *Doser) WaitTimer() *Timer { return &d.waitTimer }

var (
	_ Controller = (*Threshold)(nil)
	_ Controller = (*Doser)(nil)
)
