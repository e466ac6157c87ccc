package sensor

import (
	"context"
	"log"
	"time"
)

// Gate is the suspension checkpoint a task passes through on every loop.
type Gate interface {
	// Checkpoint blocks while the task is suspended. It returns false once ctx is done.
	Checkpoint(ctx context.Context) bool
}

// VarSource supplies the latest values for calibration variables.
type VarSource func(names []string) map[string]float64

// Sampler periodically reads one driver into its Reading slot.
type Sampler struct {
	Driver      Driver
	Reading     *Reading
	Calibration *Calibration
	Vars        VarSource

	// OnError is called for every failed read (metrics hook). May be nil.
	OnError func(name string, err error)
	// OnSample is called with every accepted value. May be nil.
	OnSample func(name string, v float64)
	// Now stamps samples taken by Run. Defaults to time.Now.
	Now func() time.Time
}

// Sample performs one read. On failure the previous value is kept.
func (s *Sampler) Sample(now time.Time) error {
	name := s.Driver.Name()
	if h, ok := s.Driver.(Hibernator); ok && !h.Awake() {
		return nil
	}
	raw, err := s.Driver.Read()
	if err != nil {
		s.fail(name, err)
		return err
	}
	v := raw
	if s.Calibration != nil {
		var vars map[string]float64
		if names := s.Calibration.Vars(); len(names) > 0 && s.Vars != nil {
			vars = s.Vars(names)
		}
		v, err = s.Calibration.Apply(raw, vars)
		if err != nil {
			s.fail(name, err)
			return err
		}
	}
	s.Reading.Set(v, now)
	if s.OnSample != nil {
		s.OnSample(name, v)
	}
	return nil
}

func (s *Sampler) fail(name string, err error) {
	log.Printf("sensor: %s read failed: %v", name, err)
	if s.OnError != nil {
		s.OnError(name, err)
	}
}

// Run samples on every tick until ctx is done. Each tick passes through gate
// first, so a suspended sampler parks there and performs no I/O.
func (s *Sampler) Run(ctx context.Context, gate Gate, tick <-chan time.Time) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if !gate.Checkpoint(ctx) {
				return
			}
			s.Sample(now())
		}
	}
}
