package control

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sweeney/grow-controller/internal/actuator"
	"github.com/sweeney/grow-controller/internal/clock"
	"github.com/sweeney/grow-controller/internal/logic"
	"github.com/sweeney/grow-controller/internal/metrics"
	"github.com/sweeney/grow-controller/internal/mqtt"
	"github.com/sweeney/grow-controller/internal/status"
	"github.com/sweeney/grow-controller/internal/task"
)

// Scheduler is the timer and alarm task: it switches between day and night,
// moves dosers through their dose and wait phases, cycles irrigation and
// raises the reservoir change reminder.
type Scheduler struct {
	registry  *Registry
	act       actuator.Actuator
	client    mqtt.Client
	schedule  clock.DaySchedule
	dayAlarm  *logic.Alarm
	nightAlrm *logic.Alarm
	reservoir cron.Schedule
	nextRes   time.Time

	Metrics *metrics.Metrics // may be nil
	Tracker *status.Tracker  // may be nil
}

// NewScheduler creates the scheduler. reservoirSpec is a standard five-field
// cron expression; empty disables the reminder.
func NewScheduler(reg *Registry, act actuator.Actuator, client mqtt.Client, sched clock.DaySchedule, reservoirSpec string) (*Scheduler, error) {
	day, err := logic.NewAlarm(sched.DayStart.Hour, sched.DayStart.Minute)
	if err != nil {
		return nil, err
	}
	night, err := logic.NewAlarm(sched.NightStart.Hour, sched.NightStart.Minute)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{registry: reg, act: act, client: client, schedule: sched, dayAlarm: day, nightAlrm: night}
	if reservoirSpec != "" {
		s.reservoir, err = cron.ParseStandard(reservoirSpec)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Prime sets the day/night flag from the schedule and consumes today's
// alarms that are already past, so a late start does not replay them.
func (s *Scheduler) Prime(now time.Time) {
	s.dayAlarm.CheckAndFire(now)
	s.nightAlrm.CheckAndFire(now)
	s.setDaytime(s.schedule.IsDaytime(now))
	if s.reservoir != nil {
		s.nextRes = s.reservoir.Next(now)
	}
}

func (s *Scheduler) setDaytime(day bool) {
	s.registry.SetDaytime(day)
	if s.Metrics != nil {
		metrics.SetBool(s.Metrics.Daytime, day)
	}
	if s.Tracker != nil {
		s.Tracker.SetDaytime(day)
	}
}

// Tick runs one scheduling step.
func (s *Scheduler) Tick(now time.Time) {
	// Both alarms can fire in one tick after a long suspension, so the flag
	// follows the schedule rather than the last alarm.
	dayFired := s.dayAlarm.CheckAndFire(now)
	nightFired := s.nightAlrm.CheckAndFire(now)
	if dayFired || nightFired {
		day := s.schedule.IsDaytime(now)
		log.Printf("scheduler: day alarm=%v night alarm=%v, daytime=%v", dayFired, nightFired, day)
		s.setDaytime(day)
	}

	for _, ch := range s.registry.Channels() {
		ch.Do(func(ctl logic.Controller) {
			d, ok := ctl.(*logic.Doser)
			if !ok {
				return
			}
			if phase, changed := d.Advance(now); changed {
				log.Printf("scheduler: %s -> %s", ch.Name, phase)
			}
		})
	}

	if on, changed := s.registry.TickIrrigation(now); changed {
		log.Printf("scheduler: irrigation on=%v", on)
		if err := s.act.SetIrrigation(on); err != nil {
			log.Printf("scheduler: irrigation: %v", err)
			if s.Metrics != nil {
				s.Metrics.ActuatorErrs.Inc()
			}
		}
		if s.Metrics != nil {
			metrics.SetBool(s.Metrics.Irrigation, on)
		}
		if s.Tracker != nil {
			s.Tracker.SetIrrigation(on)
		}
	}

	if s.reservoir != nil && !s.nextRes.IsZero() && !now.Before(s.nextRes) {
		s.nextRes = s.reservoir.Next(now)
		log.Printf("scheduler: reservoir change due (next %s)", s.nextRes.Format(time.RFC3339))
		if s.client != nil {
			ev := mqtt.SystemEvent{Timestamp: now, Event: "RESERVOIR_CHANGE"}
			if err := s.client.PublishSystem(ev); err != nil {
				log.Printf("scheduler: publish reservoir reminder: %v", err)
			}
		}
	}
}

// NextReservoirChange returns when the next reminder is due (zero if disabled).
func (s *Scheduler) NextReservoirChange() time.Time {
	return s.nextRes
}

// Run ticks until ctx is done, parking at gate while suspended.
func (s *Scheduler) Run(ctx context.Context, gate *task.Gate, tick <-chan time.Time, now func() time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if !gate.Checkpoint(ctx) {
				return
			}
			s.Tick(now())
		}
	}
}
