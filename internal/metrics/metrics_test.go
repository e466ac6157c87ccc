package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors(t *testing.T) {
	m := New()
	m.Reading.WithLabelValues("ph").Set(6.2)
	m.Doses.WithLabelValues("ph", "DOSE_DOWN").Inc()
	m.Doses.WithLabelValues("ph", "DOSE_DOWN").Inc()
	SetBool(m.GrowActive, true)

	if got := testutil.ToFloat64(m.Reading.WithLabelValues("ph")); got != 6.2 {
		t.Errorf("reading: got %v", got)
	}
	if got := testutil.ToFloat64(m.Doses.WithLabelValues("ph", "DOSE_DOWN")); got != 2 {
		t.Errorf("doses: got %v", got)
	}
	if got := testutil.ToFloat64(m.GrowActive); got != 1 {
		t.Errorf("grow active: got %v", got)
	}
	SetBool(m.GrowActive, false)
	if got := testutil.ToFloat64(m.GrowActive); got != 0 {
		t.Errorf("grow active after clear: got %v", got)
	}

	// Two instances must not collide.
	New()
}
