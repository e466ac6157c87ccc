package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string        `json:"event,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	SettingsReceived bool          `json:"settings_received"`
	GrowActive       bool          `json:"grow_active"`
	Daytime          bool          `json:"daytime"`
	Irrigation       bool          `json:"irrigation"`
	Channels         []ChannelJSON `json:"channels"`
	Counts           CountsJSON    `json:"counts"`
	UptimeSeconds    int64         `json:"uptime_seconds"`
	StartTime        string        `json:"start_time"`
	Timestamp        string        `json:"timestamp"`
	MQTT             MQTTStatus    `json:"mqtt"`
	Network          *NetworkJSON  `json:"network,omitempty"`
	Config           ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Value         *float64 `json:"value"`
	Updated       string   `json:"updated,omitempty"`
	Enabled       bool     `json:"enabled"`
	Active        bool     `json:"active"`
	Target        float64  `json:"target"`
	Margin        float64  `json:"margin"`
	Confirmations int      `json:"confirmations"`
	Phase         string   `json:"phase,omitempty"`
	Alert         string   `json:"alert,omitempty"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Doses  int `json:"doses"`
	Alerts int `json:"alerts"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceID        string `json:"device_id"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	SamplePeriodMs  int64  `json:"sample_period_ms"`
	ControlPeriodMs int64  `json:"control_period_ms"`
	PublishPeriodMs int64  `json:"publish_period_ms"`
	DayStart        string `json:"day_start"`
	NightStart      string `json:"night_start"`
}

func buildInner(snap Snapshot) StatusInner {
	chs := make([]ChannelJSON, 0, len(snap.Channels))
	for _, c := range snap.Channels {
		cj := ChannelJSON{
			Name:          c.Name,
			Kind:          c.Kind,
			Enabled:       c.Enabled,
			Active:        c.Active,
			Target:        c.Target,
			Margin:        c.Margin,
			Confirmations: c.Confirmations,
			Phase:         c.Phase,
			Alert:         c.Alert,
		}
		if c.Valid {
			v := c.Value
			cj.Value = &v
			cj.Updated = c.Updated.UTC().Format(time.RFC3339)
		}
		chs = append(chs, cj)
	}

	inner := StatusInner{
		SettingsReceived: snap.SettingsReceived,
		GrowActive:       snap.GrowActive,
		Daytime:          snap.Daytime,
		Irrigation:       snap.Irrigation,
		Channels:         chs,
		Counts:           CountsJSON{Doses: snap.Doses, Alerts: snap.Alerts},
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			DeviceID:        snap.Config.DeviceID,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			SamplePeriodMs:  snap.Config.SamplePeriodMs,
			ControlPeriodMs: snap.Config.ControlPeriodMs,
			PublishPeriodMs: snap.Config.PublishPeriodMs,
			DayStart:        snap.Config.DayStart,
			NightStart:      snap.Config.NightStart,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
