// Package metrics exposes the controller's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds every collector. Each instance owns its registry so tests
// can create as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	Reading      *prometheus.GaugeVec
	ReadErrors   *prometheus.CounterVec
	Doses        *prometheus.CounterVec
	DoseSeconds  *prometheus.CounterVec
	ActuatorErrs prometheus.Counter
	Alerts       *prometheus.CounterVec
	GrowActive   prometheus.Gauge
	Irrigation   prometheus.Gauge
	Daytime      prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grow_reading",
			Help: "Latest calibrated reading per channel.",
		}, []string{"channel"}),
		ReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grow_sensor_read_errors_total",
			Help: "Failed sensor reads per channel.",
		}, []string{"channel"}),
		Doses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grow_doses_total",
			Help: "Corrections issued per channel and direction.",
		}, []string{"channel", "action"}),
		DoseSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grow_dose_seconds_total",
			Help: "Pump run time per channel and direction.",
		}, []string{"channel", "action"}),
		ActuatorErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grow_actuator_errors_total",
			Help: "Actuator commands that failed.",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grow_alerts_total",
			Help: "Alarm bound violations per channel.",
		}, []string{"channel", "bound"}),
		GrowActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grow_cycle_active",
			Help: "1 while the grow cycle is running.",
		}),
		Irrigation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grow_irrigation_on",
			Help: "1 while the irrigation pump is on.",
		}),
		Daytime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grow_daytime",
			Help: "1 during the day window.",
		}),
	}
	m.Registry.MustRegister(
		m.Reading, m.ReadErrors, m.Doses, m.DoseSeconds, m.ActuatorErrs,
		m.Alerts, m.GrowActive, m.Irrigation, m.Daytime,
		collectors.NewGoCollector(),
	)
	return m
}

// SetBool sets g to 1 or 0.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}
