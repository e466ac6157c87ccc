// Package mqtt connects the controller to the cloud broker: it publishes
// readings and system events and delivers inbound settings and commands.
package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Topics are the per-device MQTT topics.
type Topics struct {
	LiveData  string
	Settings  string
	GrowCycle string
	System    string
}

// DeviceTopics returns the topics for the given device id.
func DeviceTopics(device string) Topics {
	return Topics{
		LiveData:  device + "/live_data",
		Settings:  device + "/sensor_settings",
		GrowCycle: device + "/grow_cycle",
		System:    device + "/system",
	}
}

// Client publishes to and receives from the broker.
type Client interface {
	// PublishReadings sends a readings record. Returns error if publishing
	// fails (should not crash the process).
	PublishReadings(rec ReadingsRecord) error

	// PublishSystem sends a system event.
	PublishSystem(event SystemEvent) error

	// OnSettings registers the handler for inbound settings payloads.
	OnSettings(h func(payload []byte))

	// OnCommand registers the handler for grow-cycle commands.
	OnCommand(h func(cmd Command))

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SensorValue is one named reading in a record.
type SensorValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ReadingsRecord is the periodic live data message.
type ReadingsRecord struct {
	Time    time.Time
	Sensors []SensorValue
}

type readingsPayload struct {
	Time    int64         `json:"time"`
	Sensors []SensorValue `json:"sensors"`
}

// FormatReadings creates the JSON payload for a readings record. Time is sent
// as Unix seconds.
func FormatReadings(rec ReadingsRecord) ([]byte, error) {
	sensors := rec.Sensors
	if sensors == nil {
		sensors = []SensorValue{}
	}
	return json.Marshal(readingsPayload{Time: rec.Time.Unix(), Sensors: sensors})
}

// SystemEvent represents a system event (startup, shutdown, alert, ...).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g. "STARTUP", "ALERT", "CLEAR", "SETTINGS_REJECTED"
	Reason     string
	Channel    string
	Value      *float64
	Errors     []string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload is the MQTT message payload for system events that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Reason    string   `json:"reason,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Channel:   event.Channel,
			Value:     event.Value,
			Errors:    event.Errors,
		},
	})
}

// Command is a grow-cycle command.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
)

// ParseCommand accepts either a bare word ("start") or {"command":"start"}.
func ParseCommand(payload []byte) (Command, error) {
	p := bytes.TrimSpace(payload)
	word := string(p)
	if len(p) > 0 && p[0] == '{' {
		var v struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(p, &v); err != nil {
			return "", fmt.Errorf("parse command: %w", err)
		}
		word = v.Command
	}
	switch c := Command(strings.ToLower(strings.TrimSpace(word))); c {
	case CommandStart, CommandStop:
		return c, nil
	default:
		return "", fmt.Errorf("unknown command %q", word)
	}
}
