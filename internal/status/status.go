// Package status provides a thread-safe status tracker for the grow-controller daemon.
// It is read by the HTTP handlers and the MQTT status events.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceID        string
	Broker          string
	HTTPAddr        string
	SamplePeriodMs  int64
	ControlPeriodMs int64
	PublishPeriodMs int64
	DayStart        string
	NightStart      string
}

// ChannelStatus is the display state of one controlled channel.
type ChannelStatus struct {
	Name          string
	Kind          string
	Value         float64
	Valid         bool
	Updated       time.Time
	Enabled       bool
	Active        bool
	Target        float64
	Margin        float64
	Confirmations int
	Phase         string // doser channels only
	Alert         string // "", "LOW" or "HIGH"
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	SettingsReceived bool
	GrowActive       bool
	Daytime          bool
	Irrigation       bool
	Channels         []ChannelStatus
	Doses            int
	Alerts           int
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	Network          *NetworkInfo
	Config           Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Channel returns the named channel status.
func (s Snapshot) Channel(name string) (ChannelStatus, bool) {
	for _, c := range s.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return ChannelStatus{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetChannels replaces the channel states. Called by the publish task.
func (t *Tracker) SetChannels(chs []ChannelStatus) {
	cp := append([]ChannelStatus(nil), chs...)
	t.mu.Lock()
	t.snap.Channels = cp
	t.mu.Unlock()
}

// SetGrow sets the lifecycle flags.
func (t *Tracker) SetGrow(settingsReceived, growActive bool) {
	t.mu.Lock()
	t.snap.SettingsReceived = settingsReceived
	t.snap.GrowActive = growActive
	t.mu.Unlock()
}

// SetDaytime sets the day/night flag.
func (t *Tracker) SetDaytime(day bool) {
	t.mu.Lock()
	t.snap.Daytime = day
	t.mu.Unlock()
}

// SetIrrigation sets the irrigation pump state.
func (t *Tracker) SetIrrigation(on bool) {
	t.mu.Lock()
	t.snap.Irrigation = on
	t.mu.Unlock()
}

// AddDose counts one issued correction.
func (t *Tracker) AddDose() {
	t.mu.Lock()
	t.snap.Doses++
	t.mu.Unlock()
}

// AddAlert counts one alarm bound violation.
func (t *Tracker) AddAlert() {
	t.mu.Lock()
	t.snap.Alerts++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]ChannelStatus(nil), t.snap.Channels...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
