package settings

import (
	"strings"
	"testing"
	"time"

	"github.com/sweeney/grow-controller/internal/store"
)

var specs = []Spec{
	{Name: "ph", Dosing: true, Min: 0, Max: 14},
	{Name: "ec", Dosing: true, Min: 0, Max: 10},
	{Name: "water_temp", Dosing: false, Min: 0, Max: 40},
}

const fullPayload = `{"data":[
 {"ec":{"monitoring_only":false,"control":{"dosing_time":4,"dosing_interval":300,"day_and_night":false,"day_target_value":1.8,"margin":0.2,"confirmations":3},"alarm_min":1.0,"alarm_max":2.5}},
 {"ph":{"monitoring_only":false,"control":{"dosing_time":2.5,"dosing_interval":600,"dose_percentage":0.5,"day_and_night":true,"day_target_value":6.0,"night_target_value":5.8,"margin":0.3,"confirmations":5},"alarm_min":5.0,"alarm_max":7.0}},
 {"water_temp":{"monitoring_only":false,"control":{"day_target_value":21,"margin":2}}},
 {"irrigation":{"on_interval":900,"off_interval":2700}}
]}`

func TestParseFullPayload(t *testing.T) {
	u, errs, err := Parse([]byte(fullPayload), specs)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected field errors: %v", errs)
	}
	if len(u.Channels) != 3 {
		t.Fatalf("channels: got %d, want 3", len(u.Channels))
	}
	// Registration order, not payload order.
	if u.Channels[0].Name != "ph" || u.Channels[1].Name != "ec" || u.Channels[2].Name != "water_temp" {
		t.Errorf("order: %s %s %s", u.Channels[0].Name, u.Channels[1].Name, u.Channels[2].Name)
	}

	ph := u.Channels[0]
	if !ph.Enabled || ph.Target != 6.0 || ph.NightTarget != 5.8 || !ph.DayNight || ph.Margin != 0.3 || ph.Confirmations != 5 {
		t.Errorf("ph: %+v", ph)
	}
	if ph.Dose == nil || ph.Dose.DoseTime != 2500*time.Millisecond || ph.Dose.WaitTime != 10*time.Minute || ph.Dose.Percentage != 0.5 {
		t.Errorf("ph dose: %+v", ph.Dose)
	}
	if got := ph.Bounds(7.5); got != "HIGH" {
		t.Errorf("Bounds(7.5): got %q", got)
	}
	if got := ph.Bounds(6.0); got != "" {
		t.Errorf("Bounds(6.0): got %q", got)
	}

	ec := u.Channels[1]
	if ec.Dose.Percentage != DefaultPercentage || ec.NightTarget != ec.Target {
		t.Errorf("ec defaults: %+v %+v", ec, ec.Dose)
	}

	temp := u.Channels[2]
	if temp.Dose != nil || temp.Confirmations != DefaultConfirmations {
		t.Errorf("water_temp: %+v", temp)
	}

	if u.Irrigation == nil || u.Irrigation.On != 15*time.Minute || u.Irrigation.Off != 45*time.Minute {
		t.Errorf("irrigation: %+v", u.Irrigation)
	}
}

func TestParseRejectsChannelAsAWhole(t *testing.T) {
	payload := `{"data":[
	 {"ph":{"control":{"dosing_time":2,"dosing_interval":60,"day_target_value":6.0,"margin":-1}}},
	 {"ec":{"control":{"dosing_time":2,"dosing_interval":60,"day_target_value":1.2}}}
	]}`
	u, errs, err := Parse([]byte(payload), specs)
	if err != nil {
		t.Fatal(err)
	}
	if len(u.Channels) != 1 || u.Channels[0].Name != "ec" {
		t.Fatalf("only ec should be applied, got %+v", u.Channels)
	}
	if len(errs) != 1 || errs[0].Channel != "ph" || errs[0].Field != "control.margin" {
		t.Errorf("errors: %v", errs)
	}
}

func TestParseFieldErrors(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{"unknown channel", `{"data":[{"co2":{"monitoring_only":true}}]}`, ""},
		{"target out of range", `{"data":[{"ph":{"control":{"dosing_time":1,"dosing_interval":1,"day_target_value":15}}}]}`, "control.day_target_value"},
		{"missing target", `{"data":[{"ph":{"control":{"dosing_time":1,"dosing_interval":1}}}]}`, "control.day_target_value"},
		{"night target required", `{"data":[{"ph":{"control":{"dosing_time":1,"dosing_interval":1,"day_and_night":true,"day_target_value":6}}}]}`, "control.night_target_value"},
		{"zero confirmations", `{"data":[{"ph":{"control":{"dosing_time":1,"dosing_interval":1,"day_target_value":6,"confirmations":0}}}]}`, "control.confirmations"},
		{"percentage", `{"data":[{"ph":{"control":{"dosing_time":1,"dosing_interval":1,"day_target_value":6,"dose_percentage":1.5}}}]}`, "control.dose_percentage"},
		{"dose time", `{"data":[{"ph":{"control":{"dosing_time":0,"dosing_interval":1,"day_target_value":6}}}]}`, "control.dosing_time"},
		{"dosing on threshold channel", `{"data":[{"water_temp":{"control":{"dosing_time":1,"day_target_value":20}}}]}`, "control"},
		{"alarm bounds", `{"data":[{"water_temp":{"monitoring_only":true,"alarm_min":30,"alarm_max":10}}]}`, "alarm_min"},
		{"missing control", `{"data":[{"water_temp":{"alarm_min":10}}]}`, "control"},
		{"unknown field", `{"data":[{"ph":{"control":{"dosing_time":1,"dosing_interval":1,"day_target_value":6,"speed":9}}}]}`, ""},
		{"irrigation negative", `{"data":[{"irrigation":{"on_interval":-5,"off_interval":10}}]}`, "on_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, errs, err := Parse([]byte(tt.payload), specs)
			if err != nil {
				t.Fatal(err)
			}
			if !u.Empty() {
				t.Errorf("nothing should be applied, got %+v", u)
			}
			if len(errs) == 0 {
				t.Fatal("expected field errors")
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("field: got %q, want %q (%v)", errs[0].Field, tt.wantField, errs)
			}
			if errs[0].Reason == "" || errs[0].Error() == "" {
				t.Error("every field error needs a reason")
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, p := range []string{`not json`, `{"data":[],"extra":1}`} {
		if _, _, err := Parse([]byte(p), specs); err == nil {
			t.Errorf("%s: expected decode error", p)
		}
	}
}

func TestMonitoringOnlyChannelIsDisabled(t *testing.T) {
	u, errs, _ := Parse([]byte(`{"data":[{"water_temp":{"monitoring_only":true,"alarm_max":28}}]}`), specs)
	if len(errs) != 0 || len(u.Channels) != 1 {
		t.Fatalf("got %+v %v", u, errs)
	}
	if u.Channels[0].Enabled {
		t.Error("monitoring-only channel must not be enabled")
	}
	if !strings.Contains(FieldError{Channel: "a", Field: "b", Reason: "c"}.Error(), "a.b") {
		t.Error("FieldError format")
	}
}

func TestSaveLoadRoundTripThroughRestart(t *testing.T) {
	u, _, err := Parse([]byte(fullPayload), specs)
	if err != nil {
		t.Fatal(err)
	}
	m := store.NewMemory()
	if err := Save(m, u); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := Load(m.Reopen(), specs)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Channels) != 3 || got.Irrigation == nil {
		t.Fatalf("loaded: %+v", got)
	}
	if got.Channels[0].Dose.WaitTime != 10*time.Minute || *got.Channels[0].AlarmMax != 7.0 {
		t.Errorf("ph after reload: %+v", got.Channels[0])
	}
}

func TestLoadEmptyStore(t *testing.T) {
	u, err := Load(store.NewMemory(), specs)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Empty() {
		t.Errorf("expected empty update, got %+v", u)
	}
}
