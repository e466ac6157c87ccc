// Package control runs the controller's periodic tasks: evaluating every
// channel, driving alarms and timers, and publishing readings.
package control

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/grow-controller/internal/logic"
	"github.com/sweeney/grow-controller/internal/sensor"
	"github.com/sweeney/grow-controller/internal/settings"
	"github.com/sweeney/grow-controller/internal/status"
)

// Kind selects the controller variant of a channel.
type Kind string

const (
	KindDoser     Kind = "doser"
	KindThreshold Kind = "threshold"
)

// Channel couples a probe reading with its controller. The controller is
// evaluated by the control task, advanced by the scheduler and reconfigured
// by settings updates, so every access holds mu.
type Channel struct {
	Name    string
	Kind    Kind
	Reading *sensor.Reading
	Min     float64
	Max     float64

	mu       sync.Mutex
	ctl      logic.Controller
	settings settings.Channel
	// evaluated is the time of the last sample handed to the controller.
	evaluated time.Time
}

// NewChannel builds a channel with initial settings.
func NewChannel(name string, kind Kind, reading *sensor.Reading, min, max float64, s settings.Channel, samplePeriod time.Duration) (*Channel, error) {
	s.Name = name
	ch := &Channel{Name: name, Kind: kind, Reading: reading, Min: min, Max: max, settings: s}
	switch kind {
	case KindDoser:
		var ds logic.DoseSettings
		if s.Dose != nil {
			ds = s.Dose.Logic()
		}
		ch.ctl = logic.NewDoser(name, s.Logic(), ds, samplePeriod)
	case KindThreshold:
		ch.ctl = logic.NewThreshold(name, s.Logic())
	default:
		return nil, fmt.Errorf("channel %s: unknown kind %q", name, kind)
	}
	return ch, nil
}

// Do runs fn with exclusive access to the controller.
func (c *Channel) Do(fn func(logic.Controller)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.ctl)
}

// Evaluate runs fn with the controller when snap is a sample the controller
// has not seen yet, so each sample counts as at most one confirmation. It
// reports whether fn ran.
func (c *Channel) Evaluate(snap sensor.Snapshot, fn func(logic.Controller)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !snap.Valid || !snap.Updated.After(c.evaluated) {
		return false
	}
	c.evaluated = snap.Updated
	fn(c.ctl)
	return true
}

// Apply replaces the channel settings.
func (c *Channel) Apply(s settings.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	c.ctl.Apply(s.Logic())
	if d, ok := c.ctl.(*logic.Doser); ok && s.Dose != nil {
		d.ApplyDose(s.Dose.Logic())
	}
}

// Settings returns the current settings record.
func (c *Channel) Settings() settings.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Status returns the channel's display state.
func (c *Channel) Status(daytime bool) status.ChannelStatus {
	snap := c.Reading.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	st := status.ChannelStatus{
		Name:          c.Name,
		Kind:          string(c.Kind),
		Value:         snap.Value,
		Valid:         snap.Valid,
		Updated:       snap.Updated,
		Enabled:       c.ctl.Enabled(),
		Active:        c.ctl.Active(),
		Target:        c.ctl.Target(daytime),
		Margin:        c.settings.Margin,
		Confirmations: c.ctl.Confirmations(),
	}
	if d, ok := c.ctl.(*logic.Doser); ok {
		st.Phase = string(d.Phase())
	}
	if snap.Valid {
		st.Alert = c.settings.Bounds(snap.Value)
	}
	return st
}

// Registry is the shared context handed to every task.
type Registry struct {
	// SamplePeriod is the interval at which each channel sees a new sample.
	// It sets threshold pulse lengths and the doser debounce reservation.
	SamplePeriod time.Duration

	channels []*Channel
	byName   map[string]*Channel
	daytime  atomic.Bool

	irrMu      sync.Mutex
	irrigation *logic.Irrigation
}

// NewRegistry returns an empty registry.
func NewRegistry(samplePeriod time.Duration) *Registry {
	return &Registry{
		SamplePeriod: samplePeriod,
		byName:       make(map[string]*Channel),
		irrigation:   logic.NewIrrigation(0, 0),
	}
}

// Add registers a channel. Registration order is evaluation order.
func (r *Registry) Add(ch *Channel) error {
	if _, ok := r.byName[ch.Name]; ok {
		return fmt.Errorf("duplicate channel %q", ch.Name)
	}
	r.channels = append(r.channels, ch)
	r.byName[ch.Name] = ch
	return nil
}

// Channels returns the channels in registration order.
func (r *Registry) Channels() []*Channel {
	return r.channels
}

// Channel looks a channel up by name.
func (r *Registry) Channel(name string) (*Channel, bool) {
	ch, ok := r.byName[name]
	return ch, ok
}

// Specs describes the channels for settings validation.
func (r *Registry) Specs() []settings.Spec {
	specs := make([]settings.Spec, len(r.channels))
	for i, ch := range r.channels {
		specs[i] = settings.Spec{Name: ch.Name, Dosing: ch.Kind == KindDoser, Min: ch.Min, Max: ch.Max}
	}
	return specs
}

// Daytime reports the current day/night flag.
func (r *Registry) Daytime() bool { return r.daytime.Load() }

// SetDaytime sets the day/night flag.
func (r *Registry) SetDaytime(day bool) { r.daytime.Store(day) }

// Values returns the latest valid readings by channel name.
func (r *Registry) Values(names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, n := range names {
		if ch, ok := r.byName[n]; ok {
			if s := ch.Reading.Snapshot(); s.Valid {
				out[n] = s.Value
			}
		}
	}
	return out
}

// Status returns every channel's display state.
func (r *Registry) Status() []status.ChannelStatus {
	day := r.Daytime()
	out := make([]status.ChannelStatus, len(r.channels))
	for i, ch := range r.channels {
		out[i] = ch.Status(day)
	}
	return out
}

// ApplyIrrigation sets the irrigation cadence.
func (r *Registry) ApplyIrrigation(s settings.Irrigation) {
	r.irrMu.Lock()
	r.irrigation.Apply(s.On, s.Off)
	r.irrMu.Unlock()
}

// IrrigationSettings returns the current irrigation cadence.
func (r *Registry) IrrigationSettings() settings.Irrigation {
	r.irrMu.Lock()
	defer r.irrMu.Unlock()
	on, off := r.irrigation.Periods()
	return settings.Irrigation{On: on, Off: off}
}

// TickIrrigation advances the irrigation cycle.
func (r *Registry) TickIrrigation(now time.Time) (on, changed bool) {
	r.irrMu.Lock()
	defer r.irrMu.Unlock()
	return r.irrigation.Tick(now)
}

// StopIrrigation resets the cycle; it restarts with an on period.
func (r *Registry) StopIrrigation() {
	r.irrMu.Lock()
	r.irrigation.Stop()
	r.irrMu.Unlock()
}

// Irrigating reports whether the irrigation pump should be on.
func (r *Registry) Irrigating() bool {
	r.irrMu.Lock()
	defer r.irrMu.Unlock()
	return r.irrigation.Running()
}
