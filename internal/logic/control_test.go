package logic

import (
	"math/rand"
	"testing"
	"time"
)

func phSettings() Settings {
	return Settings{Enabled: true, Target: 6.0, Margin: 0.5, Confirmations: 3}
}

func TestThresholdDebounceExample(t *testing.T) {
	c := NewThreshold("ph", phSettings())

	want := []Action{None, None, DoseDown}
	for i, v := range []float64{7.2, 7.1, 7.3} {
		if got := c.Evaluate(v, true); got != want[i] {
			t.Errorf("reading %d (%.1f): got %v, want %v", i, v, got, want[i])
		}
	}
	if !c.Active() {
		t.Error("expected active after third confirmation")
	}
	if c.Confirmations() != 0 {
		t.Errorf("confirmations should reset after trigger, got %d", c.Confirmations())
	}
}

func TestThresholdUnderTargetDosesUp(t *testing.T) {
	s := phSettings()
	s.Confirmations = 1
	c := NewThreshold("ph", s)
	if got := c.Evaluate(5.0, true); got != DoseUp {
		t.Errorf("got %v, want DOSE_UP", got)
	}
}

// Active on a threshold controller is a pulse: set by the triggering
// evaluation and cleared by the next evaluation that does not trigger.
func TestThresholdActiveIsMomentary(t *testing.T) {
	c := NewThreshold("temp", phSettings())
	var trace []bool
	for i := 0; i < 7; i++ {
		c.Evaluate(9.0, true)
		trace = append(trace, c.Active())
	}
	want := []bool{false, false, true, false, false, true, false}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("active trace: got %v, want %v", trace, want)
		}
	}

	c.Evaluate(6.0, true)
	c.Evaluate(9.0, true)
	c.Evaluate(9.0, true)
	c.Evaluate(9.0, true)
	if !c.Active() {
		t.Fatal("expected active")
	}
	c.Evaluate(6.0, true)
	if c.Active() {
		t.Error("in-range reading should clear active")
	}
}

func TestInRangeResetsConfirmations(t *testing.T) {
	c := NewThreshold("ph", phSettings())
	c.Evaluate(7.0, true)
	c.Evaluate(7.0, true)
	if c.Confirmations() != 2 {
		t.Fatalf("confirmations: got %d, want 2", c.Confirmations())
	}
	c.Evaluate(6.2, true)
	if c.Confirmations() != 0 {
		t.Errorf("confirmations after in-range: got %d, want 0", c.Confirmations())
	}
	if got := c.Evaluate(7.0, true); got != None {
		t.Errorf("debounce should restart, got %v", got)
	}
}

func TestInBandNeverActivates(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	controllers := []Controller{
		NewThreshold("t", phSettings()),
		NewDoser("d", phSettings(), DoseSettings{DoseDuration: time.Second, WaitDuration: time.Minute, Percentage: 1}, time.Second),
	}
	for _, c := range controllers {
		for i := 0; i < 1000; i++ {
			v := 5.5 + r.Float64()*1.0
			if got := c.Evaluate(v, r.Intn(2) == 0); got != None {
				t.Fatalf("%s: in-band %.3f returned %v", c.Name(), v, got)
			}
			if c.Active() {
				t.Fatalf("%s: in-band %.3f activated controller", c.Name(), v)
			}
		}
	}
}

func TestDisabledControllerDoesNothing(t *testing.T) {
	s := phSettings()
	s.Enabled = false
	s.Confirmations = 1
	c := NewThreshold("ph", s)
	if got := c.Evaluate(10, true); got != None {
		t.Errorf("disabled: got %v", got)
	}
	if c.Active() || c.Confirmations() != 0 {
		t.Error("disabled controller must not record state")
	}

	c.Enable()
	if got := c.Evaluate(10, true); got != DoseDown {
		t.Errorf("after Enable: got %v, want DOSE_DOWN", got)
	}
	c.Disable()
	if c.Active() {
		t.Error("Disable should clear active")
	}
}

func TestNightTarget(t *testing.T) {
	s := Settings{Enabled: true, Target: 6.0, NightTarget: 5.0, DayNight: true, Margin: 0.2, Confirmations: 1}
	c := NewThreshold("ph", s)
	if got := c.Target(false); got != 5.0 {
		t.Errorf("night target: got %v", got)
	}
	if got := c.Evaluate(5.9, false); got != DoseDown {
		t.Errorf("5.9 at night: got %v, want DOSE_DOWN", got)
	}
	if got := c.Evaluate(5.9, true); got != None {
		t.Errorf("5.9 by day: got %v, want NONE", got)
	}

	s.DayNight = false
	c.Apply(s)
	if got := c.Target(false); got != 6.0 {
		t.Errorf("day/night off: got %v, want 6.0", got)
	}
}

func newTestDoser() *Doser {
	return NewDoser("ph", phSettings(), DoseSettings{
		DoseDuration: 10 * time.Second,
		WaitDuration: 60 * time.Second,
		Percentage:   0.5,
	}, time.Second)
}

func TestDoserSequence(t *testing.T) {
	d := newTestDoser()
	now := t0

	var act Action
	for _, v := range []float64{7.2, 7.1, 7.3} {
		act = d.Evaluate(v, true)
	}
	if act != DoseDown || !d.Active() {
		t.Fatalf("expected DOSE_DOWN and active, got %v active=%v", act, d.Active())
	}

	if got := d.StartDose(now); got != 5*time.Second {
		t.Errorf("dose duration: got %v, want 5s", got)
	}
	if d.Phase() != PhaseDosing {
		t.Errorf("phase: got %s, want DOSING", d.Phase())
	}

	// Out-of-range readings are ignored while dosing.
	for i := 0; i < 5; i++ {
		if got := d.Evaluate(8.0, true); got != None {
			t.Fatalf("evaluate during dose returned %v", got)
		}
	}
	if d.Confirmations() != 0 {
		t.Errorf("no confirmations may be recorded during dose, got %d", d.Confirmations())
	}

	if p, changed := d.Advance(now.Add(4 * time.Second)); changed || p != PhaseDosing {
		t.Errorf("advance before expiry: %s changed=%v", p, changed)
	}
	now = now.Add(5 * time.Second)
	if p, changed := d.Advance(now); !changed || p != PhaseWaiting {
		t.Fatalf("advance at dose expiry: %s changed=%v", p, changed)
	}
	// Wait is shortened by one debounce cycle: 60s - 3*1s.
	if got := d.WaitTimer().Remaining(now); got != 57*time.Second {
		t.Errorf("wait remaining: got %v, want 57s", got)
	}
	if got := d.Evaluate(8.0, true); got != None {
		t.Errorf("evaluate during wait returned %v", got)
	}

	now = now.Add(57 * time.Second)
	if p, changed := d.Advance(now); !changed || p != PhaseIdle {
		t.Fatalf("advance at wait expiry: %s changed=%v", p, changed)
	}
	if d.Active() {
		t.Error("active should clear when the wait ends")
	}
	if d.DoseTimer().Active() || d.WaitTimer().Active() {
		t.Error("both timers should be disarmed")
	}
}

func TestDoserActiveClearedByBrokenRun(t *testing.T) {
	d := newTestDoser()
	for _, v := range []float64{7.2, 7.2, 7.2} {
		d.Evaluate(v, true)
	}
	if !d.Active() {
		t.Fatal("expected active after confirmations")
	}

	// No run in progress: an in-band reading leaves active alone.
	d.Evaluate(6.0, true)
	if !d.Active() {
		t.Error("in-band reading outside a run cleared active")
	}

	// A run broken by an in-band reading clears it.
	d.Evaluate(7.2, true)
	d.Evaluate(6.0, true)
	if d.Active() {
		t.Error("broken run should clear active")
	}
}

func TestDoserDisableDisarmsTimers(t *testing.T) {
	d := newTestDoser()
	for i := 0; i < 3; i++ {
		d.Evaluate(7.5, true)
	}
	d.StartDose(t0)
	d.Disable()
	if d.DoseTimer().Active() || d.WaitTimer().Active() {
		t.Error("Disable must disarm both timers")
	}
	if d.Active() || d.Enabled() {
		t.Error("Disable must clear active and enabled")
	}

	s := phSettings()
	d.Apply(s)
	if !d.Enabled() {
		t.Error("Apply with Enabled=true should re-enable")
	}
	s.Enabled = false
	d.StartDose(t0)
	d.Apply(s)
	if d.DoseTimer().Active() {
		t.Error("Apply with Enabled=false must behave as Disable")
	}
}

func TestDoserPercentageClamped(t *testing.T) {
	d := NewDoser("ec", phSettings(), DoseSettings{DoseDuration: 10 * time.Second, Percentage: 3}, time.Second)
	if got := d.DoseDuration(); got != 10*time.Second {
		t.Errorf("clamped high: got %v", got)
	}
	d.ApplyDose(DoseSettings{DoseDuration: 10 * time.Second, Percentage: -1})
	if got := d.DoseDuration(); got != 0 {
		t.Errorf("clamped low: got %v", got)
	}
	if got := d.WaitDuration(); got != 0 {
		t.Errorf("wait shorter than debounce should clamp to 0, got %v", got)
	}
}

// Drive a doser with random readings and random timer progress and check that
// no correction is ever issued while a dose or wait is pending.
func TestDoserNoDoubleDose(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	d := newTestDoser()
	now := t0
	for i := 0; i < 5000; i++ {
		armed := d.DoseTimer().Active() || d.WaitTimer().Active()
		act := d.Evaluate(4+r.Float64()*4, true)
		if act != None {
			if armed {
				t.Fatalf("step %d: %v issued while a timer was armed", i, act)
			}
			d.StartDose(now)
		}
		now = now.Add(time.Duration(r.Intn(5000)) * time.Millisecond)
		d.Advance(now)
	}
}
