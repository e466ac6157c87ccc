package control

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/grow-controller/internal/metrics"
	"github.com/sweeney/grow-controller/internal/mqtt"
	"github.com/sweeney/grow-controller/internal/status"
	"github.com/sweeney/grow-controller/internal/task"
)

// Recorder stores readings for the history endpoint.
type Recorder interface {
	Record(channel string, value float64, at time.Time) error
	Prune(before time.Time) (int64, error)
}

// Publisher is the consumer task that reports readings: it publishes a
// readings record, records history, raises alarm bound transitions and
// refreshes the status tracker.
type Publisher struct {
	Registry *Registry
	Client   mqtt.Client
	History  Recorder         // may be nil
	Metrics  *metrics.Metrics // may be nil
	Tracker  *status.Tracker  // may be nil
	// Retention is how long history is kept. Zero keeps everything.
	Retention time.Duration
	// MaxAge drops readings older than this from the record. Zero keeps all.
	MaxAge time.Duration

	alerts    map[string]string
	recorded  map[string]time.Time
	lastPrune time.Time
}

// Tick publishes one record built from every valid, fresh reading. History
// gets one row per sample.
func (p *Publisher) Tick(now time.Time) {
	if p.alerts == nil {
		p.alerts = make(map[string]string)
		p.recorded = make(map[string]time.Time)
	}
	rec := mqtt.ReadingsRecord{Time: now}
	for _, ch := range p.Registry.Channels() {
		snap := ch.Reading.Snapshot()
		if !snap.Valid || (p.MaxAge > 0 && snap.Age(now) > p.MaxAge) {
			continue
		}
		rec.Sensors = append(rec.Sensors, mqtt.SensorValue{Name: ch.Name, Value: snap.Value})
		if p.Metrics != nil {
			p.Metrics.Reading.WithLabelValues(ch.Name).Set(snap.Value)
		}
		if p.History != nil && snap.Updated.After(p.recorded[ch.Name]) {
			p.recorded[ch.Name] = snap.Updated
			if err := p.History.Record(ch.Name, snap.Value, snap.Updated); err != nil {
				log.Printf("publish: history %s: %v", ch.Name, err)
			}
		}
		p.checkBounds(ch, snap.Value, now)
	}

	if err := p.Client.PublishReadings(rec); err != nil {
		log.Printf("publish: readings: %v", err)
	}
	if p.Tracker != nil {
		p.Tracker.SetChannels(p.Registry.Status())
	}
	p.prune(now)
}

func (p *Publisher) checkBounds(ch *Channel, v float64, now time.Time) {
	bound := ch.Settings().Bounds(v)
	prev := p.alerts[ch.Name]
	if bound == prev {
		return
	}
	p.alerts[ch.Name] = bound

	value := v
	ev := mqtt.SystemEvent{Timestamp: now, Channel: ch.Name, Value: &value}
	if bound == "" {
		ev.Event = "CLEAR"
		ev.Reason = prev
		log.Printf("publish: %s back in range at %.3f", ch.Name, v)
	} else {
		ev.Event = "ALERT"
		ev.Reason = bound
		log.Printf("publish: %s %s at %.3f", ch.Name, bound, v)
		if p.Metrics != nil {
			p.Metrics.Alerts.WithLabelValues(ch.Name, bound).Inc()
		}
		if p.Tracker != nil {
			p.Tracker.AddAlert()
		}
	}
	if err := p.Client.PublishSystem(ev); err != nil {
		log.Printf("publish: %s event: %v", ev.Event, err)
	}
}

func (p *Publisher) prune(now time.Time) {
	if p.History == nil || p.Retention <= 0 {
		return
	}
	if !p.lastPrune.IsZero() && now.Sub(p.lastPrune) < time.Hour {
		return
	}
	p.lastPrune = now
	n, err := p.History.Prune(now.Add(-p.Retention))
	if err != nil {
		log.Printf("publish: prune history: %v", err)
		return
	}
	if n > 0 {
		log.Printf("publish: pruned %d history rows", n)
	}
}

// Run ticks until ctx is done, parking at gate while suspended.
func (p *Publisher) Run(ctx context.Context, gate *task.Gate, tick <-chan time.Time, now func() time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if !gate.Checkpoint(ctx) {
				return
			}
			p.Tick(now())
		}
	}
}
