package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/grow-controller/internal/actuator"
	"github.com/sweeney/grow-controller/internal/config"
	"github.com/sweeney/grow-controller/internal/control"
	"github.com/sweeney/grow-controller/internal/metrics"
	"github.com/sweeney/grow-controller/internal/sensor"
	"github.com/sweeney/grow-controller/internal/settings"
	"github.com/sweeney/grow-controller/internal/store"
	"github.com/sweeney/grow-controller/internal/task"
)

// hardware holds the opened probe drivers and the actuator bank.
type hardware struct {
	drivers  map[string]sensor.Driver
	probes   []sensor.Hibernator
	actuator actuator.Actuator
	bus      sensor.Bus
}

func (h *hardware) Close() error {
	var errs []error
	for name, d := range h.drivers {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if h.bus != nil {
		if err := h.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close i2c: %w", err))
		}
	}
	if h.actuator != nil {
		if err := h.actuator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close actuator: %w", err))
		}
	}
	return errors.Join(errs...)
}

// openHardware opens every probe and pump line. In dev mode probes read a
// fixed mid-range value and pumps drive in-memory outputs.
func openHardware(cfg config.Config, dev bool) (*hardware, error) {
	hw := &hardware{drivers: make(map[string]sensor.Driver, len(cfg.Channels))}
	if dev {
		pumps := make(map[string]actuator.PumpLines, len(cfg.Channels))
		for _, ch := range cfg.Channels {
			hw.drivers[ch.Name] = sensor.NewFakeDriver(ch.Name, (ch.Min+ch.Max)/2)
			pumps[ch.Name] = actuator.PumpLines{Up: devOutput(ch.Pumps.Up), Down: devOutput(ch.Pumps.Down)}
		}
		hw.actuator = actuator.NewBank(pumps, devOutput(cfg.IrrigationLine))
		hw.collectProbes(cfg)
		return hw, nil
	}

	for _, ch := range cfg.Channels {
		switch ch.Driver {
		case config.DriverEZOPH, config.DriverEZOEC:
			if hw.bus == nil {
				bus, err := sensor.OpenI2C()
				if err != nil {
					hw.Close()
					return nil, fmt.Errorf("open i2c: %w", err)
				}
				hw.bus = bus
			}
			delay := sensor.EZOpHDelay
			if ch.Driver == config.DriverEZOEC {
				delay = sensor.EZOECDelay
			}
			hw.drivers[ch.Name] = sensor.NewEZO(ch.Name, hw.bus, byte(ch.Address), delay)
		case config.DriverDS18B20:
			hw.drivers[ch.Name] = sensor.NewDS18B20(ch.Name, ch.Sensor)
		default:
			hw.Close()
			return nil, fmt.Errorf("channel %s: unknown driver %q", ch.Name, ch.Driver)
		}
	}
	hw.collectProbes(cfg)

	lines := make(map[string]actuator.LineConfig, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		lines[ch.Name] = actuator.LineConfig{Up: ch.Pumps.Up, Down: ch.Pumps.Down}
	}
	bank, err := actuator.OpenBank(cfg.GPIOChip, lines, cfg.IrrigationLine)
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	hw.actuator = bank
	return hw, nil
}

func (h *hardware) collectProbes(cfg config.Config) {
	for _, ch := range cfg.Channels {
		if !ch.Hibernates() {
			continue
		}
		if p, ok := h.drivers[ch.Name].(sensor.Hibernator); ok {
			h.probes = append(h.probes, p)
		}
	}
}

func devOutput(offset int) actuator.Output {
	if offset < 0 {
		return nil
	}
	return &actuator.FakeOutput{}
}

// buildRegistry creates one channel per configured probe. Channels start
// disabled until settings arrive or are restored.
func buildRegistry(cfg config.Config, hw *hardware) (*control.Registry, error) {
	reg := control.NewRegistry(cfg.EvaluationPeriod())
	for _, c := range cfg.Channels {
		if _, ok := hw.drivers[c.Name]; !ok {
			return nil, fmt.Errorf("channel %s: no driver", c.Name)
		}
		ch, err := control.NewChannel(c.Name, control.Kind(c.Kind), &sensor.Reading{}, c.Min, c.Max, settings.Channel{}, reg.SamplePeriod)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(ch); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

type tasks struct {
	orchestrator *control.Orchestrator
	scheduler    *control.Scheduler
	publisher    *control.Publisher
	metrics      *metrics.Metrics
	now          func() time.Time
}

// startTasks launches one sampler per channel as producers, and the control,
// scheduler and publish loops as consumers.
func startTasks(group *task.Group, cfg config.Config, reg *control.Registry, hw *hardware, suspended bool, t tasks) {
	for _, c := range cfg.Channels {
		ch, _ := reg.Channel(c.Name)
		cal, err := sensor.ParseCalibration(c.Calibration)
		if err != nil {
			// Validated with the config.
			log.Printf("sensor: %s: %v", c.Name, err)
			cal = nil
		}
		s := &sensor.Sampler{
			Driver:      hw.drivers[c.Name],
			Reading:     ch.Reading,
			Calibration: cal,
			Vars:        reg.Values,
		}
		if t.metrics != nil {
			s.OnError = func(name string, err error) {
				t.metrics.ReadErrors.WithLabelValues(name).Inc()
			}
		}
		group.Go("sample-"+c.Name, task.Producer, suspended, func(ctx context.Context, gate *task.Gate) {
			ticker := time.NewTicker(cfg.SamplePeriod)
			defer ticker.Stop()
			s.Run(ctx, gate, ticker.C)
		})
	}

	consumers := []struct {
		name   string
		period time.Duration
		run    func(context.Context, *task.Gate, <-chan time.Time, func() time.Time)
	}{
		{"control", cfg.ControlPeriod, t.orchestrator.Run},
		{"scheduler", cfg.SchedulePeriod, t.scheduler.Run},
		{"publish", cfg.PublishPeriod, t.publisher.Run},
	}
	for _, c := range consumers {
		group.Go(c.name, task.Consumer, suspended, func(ctx context.Context, gate *task.Gate) {
			ticker := time.NewTicker(c.period)
			defer ticker.Stop()
			c.run(ctx, gate, ticker.C, t.now)
		})
	}
}

// Store namespace and key of the generated device id.
const (
	deviceNamespace = "device"
	deviceKey       = "id"
)

// resolveDeviceID returns the configured id, or the id generated on first
// boot and kept in the store.
func resolveDeviceID(configured string, st store.Store) (string, error) {
	if configured != "" {
		return configured, nil
	}
	var id string
	err := st.Get(deviceNamespace, deviceKey, &id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !store.IsNotFound(err) {
		return "", fmt.Errorf("load device id: %w", err)
	}
	id = uuid.NewString()
	if err := st.Set(deviceNamespace, deviceKey, id); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	if err := st.Commit(); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	log.Printf("generated device id %s", id)
	return id, nil
}
