package logic

import (
	"testing"
	"time"
)

func TestIrrigationCycle(t *testing.T) {
	irr := NewIrrigation(10*time.Minute, 20*time.Minute)

	steps := []struct {
		offset      time.Duration
		wantOn      bool
		wantChanged bool
	}{
		{0, true, true},
		{5 * time.Minute, true, false},
		{10 * time.Minute, false, true},
		{29 * time.Minute, false, false},
		{30 * time.Minute, true, true},
		{40 * time.Minute, false, true},
	}
	for _, s := range steps {
		on, changed := irr.Tick(t0.Add(s.offset))
		if on != s.wantOn || changed != s.wantChanged {
			t.Errorf("+%v: got on=%v changed=%v, want on=%v changed=%v",
				s.offset, on, changed, s.wantOn, s.wantChanged)
		}
	}
}

func TestIrrigationZeroOnDisables(t *testing.T) {
	irr := NewIrrigation(time.Minute, time.Minute)
	irr.Tick(t0)
	irr.Apply(0, time.Minute)
	on, changed := irr.Tick(t0.Add(time.Second))
	if on || !changed {
		t.Errorf("got on=%v changed=%v, want off and changed", on, changed)
	}
	if on, changed := irr.Tick(t0.Add(time.Hour)); on || changed {
		t.Error("disabled cycle should stay off")
	}
}

func TestIrrigationZeroOffRunsContinuously(t *testing.T) {
	irr := NewIrrigation(time.Minute, 0)
	for i := 0; i < 5; i++ {
		on, _ := irr.Tick(t0.Add(time.Duration(i) * time.Hour))
		if !on {
			t.Fatalf("tick %d: expected continuous run", i)
		}
	}
}

func TestIrrigationStopRestartsWithOnPeriod(t *testing.T) {
	irr := NewIrrigation(time.Minute, time.Hour)
	irr.Tick(t0)
	irr.Tick(t0.Add(time.Minute)) // now off
	irr.Stop()
	if irr.Running() {
		t.Fatal("expected stopped")
	}
	on, changed := irr.Tick(t0.Add(2 * time.Minute))
	if !on || !changed {
		t.Errorf("restart: got on=%v changed=%v", on, changed)
	}
}
