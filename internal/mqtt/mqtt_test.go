package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDeviceTopics(t *testing.T) {
	tp := DeviceTopics("grow-01")
	want := Topics{"grow-01/live_data", "grow-01/sensor_settings", "grow-01/grow_cycle", "grow-01/system"}
	if tp != want {
		t.Errorf("got %+v, want %+v", tp, want)
	}
}

func TestFormatReadings(t *testing.T) {
	rec := ReadingsRecord{
		Time:    time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Sensors: []SensorValue{{"ph", 6.1}, {"ec", 1.8}},
	}
	payload, err := FormatReadings(rec)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"time":1770070692,"sensors":[{"name":"ph","value":6.1},{"name":"ec","value":1.8}]}`
	if string(payload) != want {
		t.Errorf("got %s\nwant %s", payload, want)
	}

	empty, _ := FormatReadings(ReadingsRecord{Time: rec.Time})
	var parsed map[string]json.RawMessage
	json.Unmarshal(empty, &parsed)
	if string(parsed["sensors"]) != "[]" {
		t.Errorf("empty sensors should encode as [], got %s", parsed["sensors"])
	}
}

func TestFormatSystemPayload(t *testing.T) {
	v := 7.6
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     "ALERT",
		Reason:    "HIGH",
		Channel:   "ph",
		Value:     &v,
	})
	if err != nil {
		t.Fatal(err)
	}
	var p SystemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatal(err)
	}
	s := p.System
	if s.Timestamp != "2026-02-02T22:18:12Z" || s.Event != "ALERT" || s.Reason != "HIGH" || s.Channel != "ph" || *s.Value != 7.6 {
		t.Errorf("got %+v", s)
	}

	raw := []byte(`{"status":{}}`)
	got, _ := FormatSystemPayload(SystemEvent{RawPayload: raw})
	if string(got) != string(raw) {
		t.Error("RawPayload should be returned as-is")
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{"start", CommandStart, false},
		{" STOP\n", CommandStop, false},
		{`{"command":"start"}`, CommandStart, false},
		{`{"command":"pause"}`, "", true},
		{`{bad`, "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCommand([]byte(tt.in))
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCommand(%q): got %q err=%v", tt.in, got, err)
		}
	}
}

func newTestOutbox(connected *bool, sent *[]bufferedMsg, sendErr *error) *outbox {
	return &outbox{
		buf:       newRingBuffer(10),
		connected: func() bool { return *connected },
		send: func(m bufferedMsg) error {
			if *sendErr != nil {
				return *sendErr
			}
			*sent = append(*sent, m)
			return nil
		},
	}
}

func TestOutboxBuffersWhileOffline(t *testing.T) {
	connected := false
	var sent []bufferedMsg
	var sendErr error
	o := newTestOutbox(&connected, &sent, &sendErr)

	for i := 0; i < 3; i++ {
		if err := o.publish(bufferedMsg{topic: "t", payload: []byte{byte(i)}}); err != nil {
			t.Fatal(err)
		}
	}
	if len(sent) != 0 || o.pending() != 3 {
		t.Fatalf("offline: sent=%d pending=%d", len(sent), o.pending())
	}

	connected = true
	if n := o.flush(); n != 3 {
		t.Errorf("flush: got %d, want 3", n)
	}
	if string(payloads(sent)) != string([]byte{0, 1, 2}) {
		t.Errorf("replay order: %v", payloads(sent))
	}

	o.publish(bufferedMsg{topic: "t", payload: []byte{9}})
	if len(sent) != 4 || o.pending() != 0 {
		t.Errorf("online publish should send directly")
	}
}

func TestOutboxKeepsUnsentOnFailure(t *testing.T) {
	connected := true
	var sent []bufferedMsg
	sendErr := errors.New("broker gone")
	o := newTestOutbox(&connected, &sent, &sendErr)

	if err := o.publish(bufferedMsg{topic: "t", payload: []byte{1}}); err == nil {
		t.Error("expected send error")
	}
	if o.pending() != 1 {
		t.Fatalf("failed message should be buffered, pending=%d", o.pending())
	}
	if n := o.flush(); n != 0 || o.pending() != 1 {
		t.Errorf("failed flush: n=%d pending=%d", n, o.pending())
	}
	sendErr = nil
	if n := o.flush(); n != 1 || o.pending() != 0 {
		t.Errorf("retry flush: n=%d pending=%d", n, o.pending())
	}
}

func TestFakeClientDelivers(t *testing.T) {
	f := NewFakeClient()
	var gotSettings []byte
	var gotCmd Command
	f.OnSettings(func(p []byte) { gotSettings = p })
	f.OnCommand(func(c Command) { gotCmd = c })
	f.DeliverSettings([]byte(`{"data":[]}`))
	f.DeliverCommand(CommandStop)
	if string(gotSettings) != `{"data":[]}` || gotCmd != CommandStop {
		t.Errorf("got %s %s", gotSettings, gotCmd)
	}
}
