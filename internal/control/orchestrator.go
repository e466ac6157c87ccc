package control

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/grow-controller/internal/actuator"
	"github.com/sweeney/grow-controller/internal/logic"
	"github.com/sweeney/grow-controller/internal/metrics"
	"github.com/sweeney/grow-controller/internal/status"
	"github.com/sweeney/grow-controller/internal/task"
)

// Orchestrator evaluates every channel against its latest reading and
// issues the resulting corrections.
type Orchestrator struct {
	Registry *Registry
	Actuator actuator.Actuator
	// MaxAge is the oldest reading that may drive a correction.
	MaxAge  time.Duration
	Metrics *metrics.Metrics // may be nil
	Tracker *status.Tracker  // may be nil
}

type command struct {
	channel string
	action  logic.Action
	d       time.Duration
}

// Tick runs one control step over all channels in registration order. A
// channel whose reading has not changed since the previous step is skipped.
func (o *Orchestrator) Tick(now time.Time) {
	day := o.Registry.Daytime()
	for _, ch := range o.Registry.Channels() {
		snap := ch.Reading.Snapshot()
		if !snap.Valid || snap.Age(now) > o.MaxAge {
			continue
		}
		var cmd *command
		ch.Evaluate(snap, func(ctl logic.Controller) {
			act := ctl.Evaluate(snap.Value, day)
			if act == logic.None {
				return
			}
			d := o.Registry.SamplePeriod
			if doser, ok := ctl.(*logic.Doser); ok {
				d = doser.StartDose(now)
			}
			cmd = &command{channel: ch.Name, action: act, d: d}
		})
		if cmd != nil {
			o.issue(*cmd, snap.Value)
		}
	}
}

func (o *Orchestrator) issue(cmd command, value float64) {
	log.Printf("control: %s at %.3f -> %v for %v", cmd.channel, value, cmd.action, cmd.d)
	if err := o.Actuator.Dose(cmd.channel, cmd.action, cmd.d); err != nil {
		log.Printf("control: %s %v failed: %v", cmd.channel, cmd.action, err)
		if o.Metrics != nil {
			o.Metrics.ActuatorErrs.Inc()
		}
		return
	}
	if o.Metrics != nil {
		o.Metrics.Doses.WithLabelValues(cmd.channel, cmd.action.String()).Inc()
		o.Metrics.DoseSeconds.WithLabelValues(cmd.channel, cmd.action.String()).Add(cmd.d.Seconds())
	}
	if o.Tracker != nil {
		o.Tracker.AddDose()
	}
}

// Run ticks until ctx is done, parking at gate while suspended.
func (o *Orchestrator) Run(ctx context.Context, gate *task.Gate, tick <-chan time.Time, now func() time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if !gate.Checkpoint(ctx) {
				return
			}
			o.Tick(now())
		}
	}
}
