// Package settings defines the typed per-channel settings records and decodes
// the settings payload sent by the cloud service.
package settings

import (
	"fmt"
	"time"

	"github.com/sweeney/grow-controller/internal/logic"
)

// Channel is the validated configuration of one controlled channel.
type Channel struct {
	Name          string   `json:"name"`
	Enabled       bool     `json:"enabled"`
	Target        float64  `json:"target"`
	NightTarget   float64  `json:"night_target"`
	DayNight      bool     `json:"day_night"`
	Margin        float64  `json:"margin"`
	Confirmations int      `json:"confirmations"`
	AlarmMin      *float64 `json:"alarm_min,omitempty"`
	AlarmMax      *float64 `json:"alarm_max,omitempty"`
	Dose          *Dose    `json:"dose,omitempty"`
}

// Dose holds the doser timings of a channel.
type Dose struct {
	DoseTime   time.Duration `json:"dose_time"`
	WaitTime   time.Duration `json:"wait_time"`
	Percentage float64       `json:"percentage"`
}

// Irrigation is the pump on/off cadence.
type Irrigation struct {
	On  time.Duration `json:"on"`
	Off time.Duration `json:"off"`
}

// Logic converts the record to controller settings.
func (c Channel) Logic() logic.Settings {
	return logic.Settings{
		Enabled:       c.Enabled,
		Target:        c.Target,
		NightTarget:   c.NightTarget,
		DayNight:      c.DayNight,
		Margin:        c.Margin,
		Confirmations: c.Confirmations,
	}
}

// Logic converts the record to doser settings.
func (d Dose) Logic() logic.DoseSettings {
	return logic.DoseSettings{
		DoseDuration: d.DoseTime,
		WaitDuration: d.WaitTime,
		Percentage:   d.Percentage,
	}
}

// Bounds reports whether v is outside the alarm bounds, and in which direction.
// It returns "" when v is inside (or no bounds are set), "LOW" or "HIGH" otherwise.
func (c Channel) Bounds(v float64) string {
	switch {
	case c.AlarmMin != nil && v < *c.AlarmMin:
		return "LOW"
	case c.AlarmMax != nil && v > *c.AlarmMax:
		return "HIGH"
	}
	return ""
}

// Spec describes a channel the device knows about, for validation.
type Spec struct {
	Name   string
	Dosing bool
	Min    float64
	Max    float64
}

// Update is the valid part of a settings payload.
type Update struct {
	Channels   []Channel
	Irrigation *Irrigation
}

// Empty reports whether the update carries nothing to apply.
func (u Update) Empty() bool {
	return len(u.Channels) == 0 && u.Irrigation == nil
}

// FieldError explains why one field of a channel was rejected.
type FieldError struct {
	Channel string `json:"channel"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Channel, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Channel, e.Field, e.Reason)
}
