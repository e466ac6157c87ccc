package control

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/grow-controller/internal/metrics"
	"github.com/sweeney/grow-controller/internal/mqtt"
	"github.com/sweeney/grow-controller/internal/status"
)

type fakeRecorder struct {
	records []string
	prunes  []time.Time
}

func (f *fakeRecorder) Record(channel string, value float64, at time.Time) error {
	f.records = append(f.records, channel)
	return nil
}

func (f *fakeRecorder) Prune(before time.Time) (int64, error) {
	f.prunes = append(f.prunes, before)
	return 0, nil
}

func TestPublisherPublishesValidReadings(t *testing.T) {
	reg := newRegistry(t)
	client := mqtt.NewFakeClient()
	hist := &fakeRecorder{}
	tr := status.NewTracker(t0, status.Config{})
	p := &Publisher{Registry: reg, Client: client, History: hist, Tracker: tr}

	channel(t, reg, "ph").Reading.Set(6.1, t0)
	channel(t, reg, "water_temp").Reading.Set(20.0, t0)
	p.Tick(t0)

	if client.ReadingsCount() != 1 {
		t.Fatalf("got %d records, want 1", client.ReadingsCount())
	}
	rec := client.Readings[0]
	if !rec.Time.Equal(t0) {
		t.Errorf("time = %v", rec.Time)
	}
	want := []mqtt.SensorValue{{Name: "ph", Value: 6.1}, {Name: "water_temp", Value: 20.0}}
	if len(rec.Sensors) != len(want) {
		t.Fatalf("sensors = %+v, want %+v", rec.Sensors, want)
	}
	for i := range want {
		if rec.Sensors[i] != want[i] {
			t.Errorf("sensor %d = %+v, want %+v", i, rec.Sensors[i], want[i])
		}
	}
	if len(hist.records) != 2 {
		t.Errorf("history records = %v", hist.records)
	}
	snap := tr.Snapshot()
	if len(snap.Channels) != 3 {
		t.Fatalf("tracker channels = %d, want 3", len(snap.Channels))
	}
	if ec, _ := snap.Channel("ec"); ec.Valid {
		t.Error("ec should be invalid")
	}
}

func TestPublisherAlertTransitions(t *testing.T) {
	reg := newRegistry(t)
	client := mqtt.NewFakeClient()
	m := metrics.New()
	tr := status.NewTracker(t0, status.Config{})
	p := &Publisher{Registry: reg, Client: client, Metrics: m, Tracker: tr}
	ph := channel(t, reg, "ph")

	steps := []float64{6.0, 7.5, 7.6, 6.5, 4.0}
	for i, v := range steps {
		now := t0.Add(time.Duration(i) * time.Second)
		ph.Reading.Set(v, now)
		p.Tick(now)
	}

	events := client.SystemEvents
	want := []struct{ event, reason string }{
		{"ALERT", "HIGH"},
		{"CLEAR", "HIGH"},
		{"ALERT", "LOW"},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %d", client.Events(), len(want))
	}
	for i, w := range want {
		if events[i].Event != w.event || events[i].Reason != w.reason || events[i].Channel != "ph" {
			t.Errorf("event %d = %s/%s/%s, want %s/%s/ph", i, events[i].Event, events[i].Reason, events[i].Channel, w.event, w.reason)
		}
	}
	if events[0].Value == nil || *events[0].Value != 7.5 {
		t.Errorf("alert value = %v, want 7.5", events[0].Value)
	}
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("ph", "HIGH")); got != 1 {
		t.Errorf("HIGH alerts = %v, want 1", got)
	}
	if got := tr.Snapshot().Alerts; got != 2 {
		t.Errorf("tracker alerts = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.Reading.WithLabelValues("ph")); got != 4.0 {
		t.Errorf("reading gauge = %v, want 4", got)
	}
}

func TestPublisherKeepsGoingWhenPublishFails(t *testing.T) {
	reg := newRegistry(t)
	client := mqtt.NewFakeClient()
	client.PublishError = errors.New("offline")
	hist := &fakeRecorder{}
	p := &Publisher{Registry: reg, Client: client, History: hist}

	channel(t, reg, "ph").Reading.Set(6.0, t0)
	p.Tick(t0)
	if len(hist.records) != 1 {
		t.Errorf("history records = %v, want 1", hist.records)
	}
}

func TestPublisherPrunesHourly(t *testing.T) {
	reg := newRegistry(t)
	hist := &fakeRecorder{}
	p := &Publisher{Registry: reg, Client: mqtt.NewFakeClient(), History: hist, Retention: 24 * time.Hour}

	p.Tick(t0)
	p.Tick(t0.Add(time.Minute))
	p.Tick(t0.Add(time.Hour))
	if len(hist.prunes) != 2 {
		t.Fatalf("prunes = %d, want 2", len(hist.prunes))
	}
	if want := t0.Add(-24 * time.Hour); !hist.prunes[0].Equal(want) {
		t.Errorf("prune before = %v, want %v", hist.prunes[0], want)
	}
}

func TestPublisherSkipsStaleAndRecordsEachSampleOnce(t *testing.T) {
	reg := newRegistry(t)
	client := mqtt.NewFakeClient()
	hist := &fakeRecorder{}
	p := &Publisher{Registry: reg, Client: client, History: hist, MaxAge: 10 * time.Second}
	ph := channel(t, reg, "ph")

	ph.Reading.Set(6.2, t0)
	p.Tick(t0)
	p.Tick(t0.Add(5 * time.Second))
	if len(hist.records) != 1 {
		t.Errorf("history records = %v, want one row for one sample", hist.records)
	}
	if n := len(client.Readings[1].Sensors); n != 1 {
		t.Errorf("fresh reading dropped: %d sensors", n)
	}

	// The probe stops updating; its last value ages out of the record.
	p.Tick(t0.Add(30 * time.Second))
	if n := len(client.Readings[2].Sensors); n != 0 {
		t.Errorf("stale reading published: %+v", client.Readings[2].Sensors)
	}

	ph.Reading.Set(6.3, t0.Add(31*time.Second))
	p.Tick(t0.Add(31 * time.Second))
	if len(hist.records) != 2 || len(client.Readings[3].Sensors) != 1 {
		t.Errorf("records = %v, sensors = %+v", hist.records, client.Readings[3].Sensors)
	}
}
