// Package logic contains the pure control logic for the grow controller.
// This package has NO external dependencies (no GPIO, MQTT, storage, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Action is the correction requested by a controller after an evaluation.
type Action int

const (
	None Action = iota
	// DoseUp raises the controlled value (reading is under target).
	DoseUp
	// DoseDown lowers the controlled value (reading is over target).
	DoseDown
)

func (a Action) String() string {
	switch a {
	case DoseUp:
		return "DOSE_UP"
	case DoseDown:
		return "DOSE_DOWN"
	default:
		return "NONE"
	}
}

// Phase is the dosing phase of a Doser.
type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseDosing  Phase = "DOSING"
	PhaseWaiting Phase = "WAITING"
)

// Settings are the tunable parameters shared by every controller variant.
type Settings struct {
	Enabled       bool
	Target        float64
	NightTarget   float64
	DayNight      bool
	Margin        float64
	Confirmations int
}

// DoseSettings are the doser-only timings.
type DoseSettings struct {
	DoseDuration time.Duration
	WaitDuration time.Duration
	// Percentage scales DoseDuration, in [0,1].
	Percentage float64
}

// Controller is the behaviour shared by the threshold and doser variants.
type Controller interface {
	Name() string
	// Evaluate runs one control step against the current reading.
	Evaluate(value float64, daytime bool) Action
	Enabled() bool
	Active() bool
	Enable()
	Disable()
	Apply(s Settings)
	Settings() Settings
	// Target returns the setpoint in effect for the time of day.
	Target(daytime bool) float64
	// Confirmations returns the current consecutive out-of-range count.
	Confirmations() int
}
