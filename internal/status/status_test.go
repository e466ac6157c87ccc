package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	tr := NewTracker(start, Config{DeviceID: "grow-01", Broker: "tcp://localhost:1883", HTTPAddr: ":80", SamplePeriodMs: 1000})
	tr.now = func() time.Time { return start.Add(90 * time.Second) }
	return tr
}

func TestNewTracker(t *testing.T) {
	snap := newTestTracker().Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.DeviceID != "grow-01" {
		t.Errorf("Config.DeviceID: got %q", snap.Config.DeviceID)
	}
	if snap.GrowActive || snap.SettingsReceived || snap.MQTTConnected {
		t.Error("expected all flags false initially")
	}
	if got := snap.Uptime(); got != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", got)
	}
}

func TestSettersAndSnapshot(t *testing.T) {
	tr := newTestTracker()
	tr.SetGrow(true, true)
	tr.SetDaytime(true)
	tr.SetIrrigation(true)
	tr.SetMQTTConnected(true)
	tr.AddDose()
	tr.AddDose()
	tr.AddAlert()
	tr.SetChannels([]ChannelStatus{{Name: "ph", Kind: "doser", Value: 6.1, Valid: true, Phase: "WAITING"}})

	snap := tr.Snapshot()
	if !snap.SettingsReceived || !snap.GrowActive || !snap.Daytime || !snap.Irrigation || !snap.MQTTConnected {
		t.Errorf("flags: %+v", snap)
	}
	if snap.Doses != 2 || snap.Alerts != 1 {
		t.Errorf("counts: doses=%d alerts=%d", snap.Doses, snap.Alerts)
	}
	ph, ok := snap.Channel("ph")
	if !ok || ph.Value != 6.1 || ph.Phase != "WAITING" {
		t.Errorf("ph: %+v ok=%v", ph, ok)
	}
	if _, ok := snap.Channel("co2"); ok {
		t.Error("unknown channel found")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := newTestTracker()
	chs := []ChannelStatus{{Name: "ph", Value: 6.0}}
	tr.SetChannels(chs)
	chs[0].Value = 9

	snap := tr.Snapshot()
	snap.Channels[0].Value = 1
	if got := tr.Snapshot().Channels[0].Value; got != 6.0 {
		t.Errorf("tracker state was aliased: got %v", got)
	}
}

func TestFormatJSON(t *testing.T) {
	tr := newTestTracker()
	tr.SetGrow(true, false)
	tr.SetChannels([]ChannelStatus{
		{Name: "ph", Kind: "doser", Value: 6.2, Valid: true, Updated: start, Enabled: true, Target: 6.0, Margin: 0.3},
		{Name: "ec", Kind: "doser"},
	})
	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.50", Status: "up", SSID: "greenhouse"})

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status
	if !s.SettingsReceived || s.GrowActive {
		t.Errorf("grow flags: %+v", s)
	}
	if s.UptimeSeconds != 90 || s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("times: uptime=%d start=%s", s.UptimeSeconds, s.StartTime)
	}
	if len(s.Channels) != 2 {
		t.Fatalf("channels: %d", len(s.Channels))
	}
	if s.Channels[0].Value == nil || *s.Channels[0].Value != 6.2 {
		t.Errorf("ph value: %v", s.Channels[0].Value)
	}
	if s.Channels[1].Value != nil {
		t.Error("invalid reading must encode as null")
	}
	if s.Network == nil || s.Network.SSID != "greenhouse" {
		t.Errorf("network: %+v", s.Network)
	}
	if s.Event != "" {
		t.Error("web JSON has no event")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := newTestTracker()
	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")
	if strings.Contains(string(data), "\n") {
		t.Error("event payload should be compact")
	}
	var sj StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatal(err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event: %q reason: %q", sj.Status.Event, sj.Status.Reason)
	}

	noReason := FormatStatusEvent(tr.Snapshot(), "STARTUP", "")
	if strings.Contains(string(noReason), `"reason"`) {
		t.Error("empty reason should be omitted")
	}
	if strings.Contains(string(noReason), `"network"`) {
		t.Error("nil network should be omitted")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := newTestTracker()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.SetChannels([]ChannelStatus{{Name: "ph", Value: float64(j)}})
				tr.AddDose()
				tr.SetMQTTConnected(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
	if got := tr.Snapshot().Doses; got != 1000 {
		t.Errorf("doses: got %d, want 1000", got)
	}
}
