// Package config loads the controller's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"

	"github.com/sweeney/grow-controller/internal/clock"
	"github.com/sweeney/grow-controller/internal/sensor"
)

// Sensor drivers.
const (
	DriverEZOPH   = "ezo_ph"
	DriverEZOEC   = "ezo_ec"
	DriverDS18B20 = "ds18b20"
)

// Channel kinds.
const (
	KindDoser     = "doser"
	KindThreshold = "threshold"
)

// Pumps are the GPIO line offsets driving a channel's correction. -1 means
// no pump in that direction.
type Pumps struct {
	Up   int `yaml:"up"`
	Down int `yaml:"down"`
}

// UnmarshalYAML defaults omitted lines to -1, since 0 is a valid offset.
func (p *Pumps) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw Pumps
	r := raw{Up: -1, Down: -1}
	if err := unmarshal(&r); err != nil {
		return err
	}
	*p = Pumps(r)
	return nil
}

// Channel defines one measured and controlled variable.
type Channel struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Driver string `yaml:"driver"`
	// Address is the I2C address of EZO probes.
	Address int `yaml:"address,omitempty"`
	// Sensor is the 1-wire id or w1_slave path of a DS18B20.
	Sensor string `yaml:"sensor,omitempty"`
	// Calibration is an expression in x and other channel names.
	Calibration string  `yaml:"calibration,omitempty"`
	Pumps       Pumps   `yaml:"pumps"`
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`
}

// UnmarshalYAML defaults the pump lines when the pumps key is omitted.
func (c *Channel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw Channel
	r := raw{Pumps: Pumps{Up: -1, Down: -1}}
	if err := unmarshal(&r); err != nil {
		return err
	}
	*c = Channel(r)
	return nil
}

// Hibernates reports whether the channel's probe supports sleep mode.
func (c Channel) Hibernates() bool {
	return c.Driver == DriverEZOPH || c.Driver == DriverEZOEC
}

// Config is the full daemon configuration.
type Config struct {
	// DeviceID prefixes every MQTT topic. Empty means a generated id kept in the store.
	DeviceID     string `yaml:"device_id"`
	Broker       string `yaml:"broker"`
	MQTTUser     string `yaml:"mqtt_user,omitempty"`
	MQTTPassword string `yaml:"mqtt_password,omitempty"`
	// OfflineBuffer is how many messages are kept while the broker is unreachable.
	OfflineBuffer int `yaml:"offline_buffer"`

	HTTPAddr string `yaml:"http_addr"`
	// AdminUser and AdminPasswordHash (bcrypt) protect the write endpoints.
	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash,omitempty"`

	StorePath        string        `yaml:"store_path"`
	HistoryPath      string        `yaml:"history_path"`
	HistoryRetention time.Duration `yaml:"history_retention"`

	SamplePeriod   time.Duration `yaml:"sample_period"`
	ControlPeriod  time.Duration `yaml:"control_period"`
	SchedulePeriod time.Duration `yaml:"schedule_period"`
	PublishPeriod  time.Duration `yaml:"publish_period"`
	MaxReadingAge  time.Duration `yaml:"max_reading_age"`
	Drain          time.Duration `yaml:"drain"`
	Settle         time.Duration `yaml:"settle"`
	// Heartbeat is the period of the HEARTBEAT status event. 0 disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`

	DayStart   string `yaml:"day_start"`
	NightStart string `yaml:"night_start"`
	// ReservoirChange is a five-field cron expression; empty disables the reminder.
	ReservoirChange string `yaml:"reservoir_change"`

	// MemoryLimit is the used-memory percentage treated as exhaustion. 0 disables.
	MemoryLimit  float64       `yaml:"memory_limit"`
	HealthPeriod time.Duration `yaml:"health_period"`

	GPIOChip       string    `yaml:"gpio_chip"`
	IrrigationLine int       `yaml:"irrigation_line"`
	Channels       []Channel `yaml:"channels"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Broker:           "tcp://localhost:1883",
		OfflineBuffer:    500,
		HTTPAddr:         ":80",
		AdminUser:        "admin",
		StorePath:        "/var/lib/grow-controller/state.db",
		HistoryPath:      "/var/lib/grow-controller/history.db",
		HistoryRetention: 30 * 24 * time.Hour,
		SamplePeriod:     2 * time.Second,
		ControlPeriod:    time.Second,
		SchedulePeriod:   time.Second,
		PublishPeriod:    time.Minute,
		MaxReadingAge:    10 * time.Second,
		Drain:            5 * time.Second,
		Settle:           time.Second,
		Heartbeat:        15 * time.Minute,
		DayStart:         "06:00",
		NightStart:       "22:00",
		ReservoirChange:  "0 9 * * 0",
		MemoryLimit:      95,
		HealthPeriod:     30 * time.Second,
		GPIOChip:         "gpiochip0",
		IrrigationLine:   17,
		Channels: []Channel{
			{Name: "ph", Kind: KindDoser, Driver: DriverEZOPH, Address: 0x63, Pumps: Pumps{Up: 5, Down: 6}, Min: 0, Max: 14},
			{Name: "ec", Kind: KindDoser, Driver: DriverEZOEC, Address: 0x64, Pumps: Pumps{Up: 13, Down: -1}, Min: 0, Max: 10},
			{Name: "water_temp", Kind: KindThreshold, Driver: DriverDS18B20, Pumps: Pumps{Up: 19, Down: 26}, Min: 0, Max: 40},
		},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data into cfg, keeping any value the data omits.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// DaySchedule returns the parsed day window.
func (c Config) DaySchedule() (clock.DaySchedule, error) {
	day, err := clock.ParseTimeOfDay(c.DayStart)
	if err != nil {
		return clock.DaySchedule{}, fmt.Errorf("day_start: %w", err)
	}
	night, err := clock.ParseTimeOfDay(c.NightStart)
	if err != nil {
		return clock.DaySchedule{}, fmt.Errorf("night_start: %w", err)
	}
	return clock.DaySchedule{DayStart: day, NightStart: night}, nil
}

// EvaluationPeriod is the interval between controller evaluations of one
// channel: a new sample is evaluated at the next control tick after it lands.
func (c Config) EvaluationPeriod() time.Duration {
	if c.ControlPeriod > c.SamplePeriod {
		return c.ControlPeriod
	}
	return c.SamplePeriod
}

// Validate reports every problem with the configuration.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Broker == "" {
		fail("broker is required")
	}
	if c.StorePath == "" {
		fail("store_path is required")
	}
	periods := []struct {
		name string
		d    time.Duration
	}{
		{"sample_period", c.SamplePeriod},
		{"control_period", c.ControlPeriod},
		{"schedule_period", c.SchedulePeriod},
		{"publish_period", c.PublishPeriod},
		{"max_reading_age", c.MaxReadingAge},
	}
	for _, p := range periods {
		if p.d <= 0 {
			fail("%s must be positive", p.name)
		}
	}
	if c.Drain < 0 || c.Settle < 0 || c.HistoryRetention < 0 || c.Heartbeat < 0 {
		fail("drain, settle, heartbeat and history_retention must not be negative")
	}
	if _, err := c.DaySchedule(); err != nil {
		fail("%v", err)
	}
	if c.ReservoirChange != "" {
		if _, err := cron.ParseStandard(c.ReservoirChange); err != nil {
			fail("reservoir_change: %v", err)
		}
	}
	if c.MemoryLimit < 0 || c.MemoryLimit > 100 {
		fail("memory_limit must be between 0 and 100")
	}
	if c.MemoryLimit > 0 && c.HealthPeriod <= 0 {
		fail("health_period must be positive when memory_limit is set")
	}
	if c.AdminPasswordHash != "" && c.AdminUser == "" {
		fail("admin_user is required with admin_password_hash")
	}

	if len(c.Channels) == 0 {
		fail("at least one channel is required")
	}
	names := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			fail("channel without name")
			continue
		}
		if names[ch.Name] {
			fail("channel %s: duplicate name", ch.Name)
		}
		names[ch.Name] = true
	}
	for _, ch := range c.Channels {
		if ch.Name != "" {
			errs = append(errs, ch.validate(names)...)
		}
	}
	return errors.Join(errs...)
}

func (ch Channel) validate(names map[string]bool) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("channel %s: "+format, append([]any{ch.Name}, args...)...))
	}
	switch ch.Kind {
	case KindDoser, KindThreshold:
	default:
		fail("unknown kind %q", ch.Kind)
	}
	switch ch.Driver {
	case DriverEZOPH, DriverEZOEC:
		if ch.Address <= 0 || ch.Address > 0x7f {
			fail("i2c address %#x out of range", ch.Address)
		}
	case DriverDS18B20:
	default:
		fail("unknown driver %q", ch.Driver)
	}
	if ch.Min >= ch.Max {
		fail("min must be below max")
	}
	if ch.Kind == KindDoser && ch.Pumps.Up < 0 && ch.Pumps.Down < 0 {
		fail("doser needs at least one pump")
	}
	if ch.Calibration != "" {
		cal, err := sensor.ParseCalibration(ch.Calibration)
		if err != nil {
			fail("calibration: %v", err)
		} else {
			for _, v := range cal.Vars() {
				if !names[v] || v == ch.Name {
					fail("calibration refers to unknown channel %q", v)
				}
			}
		}
	}
	return errs
}
