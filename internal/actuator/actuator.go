// Package actuator drives the dosing pumps and the irrigation relay.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package actuator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/grow-controller/internal/logic"
)

// Actuator executes control commands. Dose returns as soon as the pump is
// started; it is stopped after d without blocking the caller.
type Actuator interface {
	Dose(channel string, action logic.Action, d time.Duration) error
	SetIrrigation(on bool) error
	// Off switches every output off and cancels pending doses.
	Off() error
	Close() error
}

// Output is a single digital output line.
type Output interface {
	SetValue(v int) error
	Close() error
}

// PumpLines names the outputs that correct one channel. A nil output means
// the channel cannot be corrected in that direction.
type PumpLines struct {
	Up   Output
	Down Output
}

// Bank is an Actuator over a set of output lines.
type Bank struct {
	mu         sync.Mutex
	pumps      map[string]PumpLines
	irrigation Output
	pending    map[Output]*time.Timer
	afterFunc  func(time.Duration, func()) *time.Timer
	release    func() error
}

// NewBank builds a bank from already opened outputs. irrigation may be nil.
func NewBank(pumps map[string]PumpLines, irrigation Output) *Bank {
	return &Bank{
		pumps:      pumps,
		irrigation: irrigation,
		pending:    make(map[Output]*time.Timer),
		afterFunc:  time.AfterFunc,
	}
}

func (b *Bank) line(channel string, action logic.Action) (Output, error) {
	p, ok := b.pumps[channel]
	if !ok {
		return nil, fmt.Errorf("actuator: no pumps for channel %q", channel)
	}
	var out Output
	switch action {
	case logic.DoseUp:
		out = p.Up
	case logic.DoseDown:
		out = p.Down
	default:
		return nil, fmt.Errorf("actuator: invalid action %v", action)
	}
	if out == nil {
		return nil, fmt.Errorf("actuator: channel %q has no %v pump", channel, action)
	}
	return out, nil
}

// Dose runs the pump for channel/action for d.
func (b *Bank) Dose(channel string, action logic.Action, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out, err := b.line(channel, action)
	if err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	if t, ok := b.pending[out]; ok {
		t.Stop()
	}
	if err := out.SetValue(1); err != nil {
		return fmt.Errorf("actuator: start %s %v: %w", channel, action, err)
	}
	var timer *time.Timer
	timer = b.afterFunc(d, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.pending[out] != timer {
			return
		}
		delete(b.pending, out)
		if err := out.SetValue(0); err != nil {
			log.Printf("actuator: stop %s %v: %v", channel, action, err)
		}
	})
	b.pending[out] = timer
	return nil
}

// SetIrrigation switches the irrigation relay.
func (b *Bank) SetIrrigation(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.irrigation == nil {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := b.irrigation.SetValue(v); err != nil {
		return fmt.Errorf("actuator: irrigation: %w", err)
	}
	return nil
}

// Off cancels pending doses and drives every output low.
func (b *Bank) Off() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for out, t := range b.pending {
		t.Stop()
		delete(b.pending, out)
	}
	for _, out := range b.outputs() {
		if err := out.SetValue(0); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("actuator: off errors: %v", errs)
	}
	return nil
}

// Close switches everything off and releases the lines.
func (b *Bank) Close() error {
	offErr := b.Off()
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	if offErr != nil {
		errs = append(errs, offErr)
	}
	for _, out := range b.outputs() {
		if err := out.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.release != nil {
		if err := b.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("actuator: close errors: %v", errs)
	}
	return nil
}

func (b *Bank) outputs() []Output {
	var outs []Output
	for _, p := range b.pumps {
		if p.Up != nil {
			outs = append(outs, p.Up)
		}
		if p.Down != nil {
			outs = append(outs, p.Down)
		}
	}
	if b.irrigation != nil {
		outs = append(outs, b.irrigation)
	}
	return outs
}

var _ Actuator = (*Bank)(nil)
