package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// IrrigationKey is the payload entry that carries the irrigation cadence.
const IrrigationKey = "irrigation"

type payload struct {
	Data []map[string]json.RawMessage `json:"data"`
}

type channelPayload struct {
	MonitoringOnly bool            `json:"monitoring_only"`
	Control        *controlPayload `json:"control"`
	AlarmMin       *float64        `json:"alarm_min"`
	AlarmMax       *float64        `json:"alarm_max"`
}

type controlPayload struct {
	DosingTime       *float64 `json:"dosing_time"`
	DosingInterval   *float64 `json:"dosing_interval"`
	DosePercentage   *float64 `json:"dose_percentage"`
	DayAndNight      bool     `json:"day_and_night"`
	DayTargetValue   *float64 `json:"day_target_value"`
	NightTargetValue *float64 `json:"night_target_value"`
	Margin           *float64 `json:"margin"`
	Confirmations    *int     `json:"confirmations"`
}

type irrigationPayload struct {
	OnInterval  *float64 `json:"on_interval"`
	OffInterval *float64 `json:"off_interval"`
}

// Defaults used when the payload omits optional control fields.
const (
	DefaultMargin        = 0.1
	DefaultConfirmations = 3
	DefaultPercentage    = 1.0
)

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Parse decodes and validates a settings payload against the known channels.
// The returned Update holds every channel that validated completely; each
// rejected channel contributes one or more FieldErrors and is not applied at
// all. The error is non-nil only when the payload is not decodable.
func Parse(data []byte, specs []Spec) (Update, []FieldError, error) {
	var p payload
	if err := strictDecode(data, &p); err != nil {
		return Update{}, nil, fmt.Errorf("decode settings: %w", err)
	}
	known := make(map[string]Spec, len(specs))
	for _, s := range specs {
		known[s.Name] = s
	}

	var u Update
	var errs []FieldError
	for _, entry := range p.Data {
		for name, raw := range entry {
			if name == IrrigationKey {
				irr, fe := parseIrrigation(raw)
				if len(fe) > 0 {
					errs = append(errs, fe...)
					continue
				}
				u.Irrigation = &irr
				continue
			}
			spec, ok := known[name]
			if !ok {
				errs = append(errs, FieldError{Channel: name, Reason: "unknown channel"})
				continue
			}
			ch, fe := parseChannel(spec, raw)
			if len(fe) > 0 {
				errs = append(errs, fe...)
				continue
			}
			u.Channels = append(u.Channels, ch)
		}
	}
	sortChannels(u.Channels, specs)
	return u, errs, nil
}

// sortChannels orders channels as the specs are registered, so that
// map iteration order never leaks into the result.
func sortChannels(chs []Channel, specs []Spec) {
	pos := make(map[string]int, len(specs))
	for i, s := range specs {
		pos[s.Name] = i
	}
	for i := 1; i < len(chs); i++ {
		for j := i; j > 0 && pos[chs[j].Name] < pos[chs[j-1].Name]; j-- {
			chs[j], chs[j-1] = chs[j-1], chs[j]
		}
	}
}

type checker struct {
	channel string
	errs    []FieldError
}

func (c *checker) fail(field, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Channel: c.channel, Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (c *checker) finite(field string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.fail(field, "must be a finite number")
		return false
	}
	return true
}

func (c *checker) inRange(field string, v, lo, hi float64) {
	if c.finite(field, v) && (v < lo || v > hi) {
		c.fail(field, "must be between %g and %g", lo, hi)
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func parseChannel(spec Spec, raw json.RawMessage) (Channel, []FieldError) {
	c := &checker{channel: spec.Name}
	var p channelPayload
	if err := strictDecode(raw, &p); err != nil {
		c.fail("", "invalid channel object: %v", err)
		return Channel{}, c.errs
	}

	ch := Channel{Name: spec.Name, AlarmMin: p.AlarmMin, AlarmMax: p.AlarmMax}
	if p.AlarmMin != nil {
		c.finite("alarm_min", *p.AlarmMin)
	}
	if p.AlarmMax != nil {
		c.finite("alarm_max", *p.AlarmMax)
	}
	if p.AlarmMin != nil && p.AlarmMax != nil && *p.AlarmMin > *p.AlarmMax {
		c.fail("alarm_min", "must not exceed alarm_max")
	}

	if p.Control == nil {
		if !p.MonitoringOnly {
			c.fail("control", "required unless monitoring_only is set")
		}
		return ch, c.errs
	}
	ctl := p.Control
	ch.Enabled = !p.MonitoringOnly
	ch.DayNight = ctl.DayAndNight

	if ctl.DayTargetValue == nil {
		c.fail("control.day_target_value", "required")
	} else {
		ch.Target = *ctl.DayTargetValue
		c.inRange("control.day_target_value", ch.Target, spec.Min, spec.Max)
	}
	ch.NightTarget = ch.Target
	if ctl.NightTargetValue != nil {
		ch.NightTarget = *ctl.NightTargetValue
		c.inRange("control.night_target_value", ch.NightTarget, spec.Min, spec.Max)
	} else if ctl.DayAndNight {
		c.fail("control.night_target_value", "required when day_and_night is set")
	}

	ch.Margin = DefaultMargin
	if ctl.Margin != nil {
		ch.Margin = *ctl.Margin
		if c.finite("control.margin", ch.Margin) && ch.Margin < 0 {
			c.fail("control.margin", "must not be negative")
		}
	}
	ch.Confirmations = DefaultConfirmations
	if ctl.Confirmations != nil {
		ch.Confirmations = *ctl.Confirmations
		if ch.Confirmations < 1 {
			c.fail("control.confirmations", "must be at least 1")
		}
	}

	dosingFields := ctl.DosingTime != nil || ctl.DosingInterval != nil || ctl.DosePercentage != nil
	switch {
	case spec.Dosing:
		d := &Dose{Percentage: DefaultPercentage}
		if ctl.DosingTime == nil {
			c.fail("control.dosing_time", "required")
		} else if c.finite("control.dosing_time", *ctl.DosingTime) && *ctl.DosingTime <= 0 {
			c.fail("control.dosing_time", "must be positive")
		} else {
			d.DoseTime = seconds(*ctl.DosingTime)
		}
		if ctl.DosingInterval == nil {
			c.fail("control.dosing_interval", "required")
		} else if c.finite("control.dosing_interval", *ctl.DosingInterval) && *ctl.DosingInterval < 0 {
			c.fail("control.dosing_interval", "must not be negative")
		} else {
			d.WaitTime = seconds(*ctl.DosingInterval)
		}
		if ctl.DosePercentage != nil {
			d.Percentage = *ctl.DosePercentage
			c.inRange("control.dose_percentage", d.Percentage, 0, 1)
		}
		ch.Dose = d
	case dosingFields:
		c.fail("control", "channel does not dose; dosing fields not allowed")
	}

	if len(c.errs) > 0 {
		return Channel{}, c.errs
	}
	return ch, nil
}

func parseIrrigation(raw json.RawMessage) (Irrigation, []FieldError) {
	c := &checker{channel: IrrigationKey}
	var p irrigationPayload
	if err := strictDecode(raw, &p); err != nil {
		c.fail("", "invalid irrigation object: %v", err)
		return Irrigation{}, c.errs
	}
	var irr Irrigation
	if p.OnInterval == nil {
		c.fail("on_interval", "required")
	} else if c.finite("on_interval", *p.OnInterval) && *p.OnInterval < 0 {
		c.fail("on_interval", "must not be negative")
	} else {
		irr.On = seconds(*p.OnInterval)
	}
	if p.OffInterval == nil {
		c.fail("off_interval", "required")
	} else if c.finite("off_interval", *p.OffInterval) && *p.OffInterval < 0 {
		c.fail("off_interval", "must not be negative")
	} else {
		irr.Off = seconds(*p.OffInterval)
	}
	if len(c.errs) > 0 {
		return Irrigation{}, c.errs
	}
	return irr, nil
}
