// Package metrics exposes the meter's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/water-meter/internal/engine"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	FlowRateLpm   prometheus.Gauge
	DailyLiters   prometheus.Gauge
	TotalLiters   prometheus.Gauge
	WeekLiters    prometheus.Gauge
	ValveOpen     prometheus.Gauge
	ValveOverride prometheus.Gauge
	TimeValid     prometheus.Gauge

	ValveTransitions *prometheus.CounterVec
	Rollovers        prometheus.Counter
	TicksTotal       prometheus.Counter
}

// New registers the meter collectors on the given registerer (the default
// registry when nil) and returns them.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FlowRateLpm: factory.NewGauge(prometheus.GaugeOpts{
			Name: "water_meter_flow_rate_lpm",
			Help: "Current flow rate in liters per minute.",
		}),
		DailyLiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "water_meter_daily_liters",
			Help: "Liters used today.",
		}),
		TotalLiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "water_meter_total_liters",
			Help: "Liters used since process start or last counter reset.",
		}),
		WeekLiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "water_meter_week_liters",
			Help: "Liters used in the rolling seven-day window.",
		}),
		ValveOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "water_meter_valve_open",
			Help: "1 when the valve is open, 0 when closed.",
		}),
		ValveOverride: factory.NewGauge(prometheus.GaugeOpts{
			Name: "water_meter_valve_override",
			Help: "1 when a manual override is holding the valve.",
		}),
		TimeValid: factory.NewGauge(prometheus.GaugeOpts{
			Name: "water_meter_time_valid",
			Help: "1 when the wall clock is trusted.",
		}),
		ValveTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "water_meter_valve_transitions_total",
			Help: "Valve transitions by direction and origin.",
		}, []string{"direction", "origin"}),
		Rollovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "water_meter_day_rollovers_total",
			Help: "Midnight rollovers performed.",
		}),
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "water_meter_ticks_total",
			Help: "Accounting ticks executed.",
		}),
	}
}

// Observe updates the gauges from an engine snapshot. Called once per tick.
func (m *Metrics) Observe(snap engine.Snapshot) {
	m.TicksTotal.Inc()
	m.FlowRateLpm.Set(snap.FlowLpm)
	m.DailyLiters.Set(snap.DailyLiters)
	m.TotalLiters.Set(snap.TotalLiters)
	m.WeekLiters.Set(snap.WeekLiters)
	m.ValveOpen.Set(boolGauge(snap.ValveOpen))
	m.ValveOverride.Set(boolGauge(snap.Override))
	m.TimeValid.Set(boolGauge(snap.TimeValid))
}

// RecordEvent counts an engine event.
func (m *Metrics) RecordEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventValveOpened:
		m.ValveTransitions.WithLabelValues("open", origin(ev.Manual)).Inc()
	case engine.EventValveClosed:
		m.ValveTransitions.WithLabelValues("close", origin(ev.Manual)).Inc()
	case engine.EventDayFinalized:
		m.Rollovers.Inc()
	}
}

func origin(manual bool) string {
	if manual {
		return "manual"
	}
	return "auto"
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
