// Package config defines the runtime configuration consumed by the metering
// core, its validation bounds, and the key-value fallback store used when no
// CSV config exists.
package config

import (
	"fmt"
	"time"

	"github.com/sweeney/water-meter/internal/schedule"
)

// Defaults match the values the device shipped with.
const (
	DefaultFlowActiveLpm     = 0.1
	DefaultMinIntervalLiters = 0.1
	DefaultReportIntervalMs  = 10000
	DefaultPulsesPerLiter    = 450.0
	DefaultTimezone          = "UTC0"

	MaxTimezoneLen = 31
)

// Config is the device configuration. The core treats it as read-only input;
// it is produced by the CSV codec, the prefs fallback, or the HTTP API.
type Config struct {
	// FlowActiveLpm is the flow-rate threshold (L/min) above which a tick
	// is classified as active flow.
	FlowActiveLpm float64

	// MinIntervalLiters is advisory: validated and persisted but not
	// currently enforced by the tracker.
	MinIntervalLiters float64

	// ReportIntervalMs is the reporting/heartbeat cadence in milliseconds.
	ReportIntervalMs uint32

	// Windows are the blocked time-of-day ranges (up to 3).
	Windows [schedule.MaxWindows]schedule.Window

	// PulsesPerLiter is the flow-sensor calibration factor.
	PulsesPerLiter float64

	// Timezone is an IANA zone name, or "UTC0"/"UTC" for UTC.
	Timezone string
}

// Default returns the shipped configuration: one 19:24->06:00 blocked window,
// the other two disabled.
func Default() Config {
	return Config{
		FlowActiveLpm:     DefaultFlowActiveLpm,
		MinIntervalLiters: DefaultMinIntervalLiters,
		ReportIntervalMs:  DefaultReportIntervalMs,
		Windows: [schedule.MaxWindows]schedule.Window{
			{StartHour: 19, StartMin: 24, EndHour: 6, EndMin: 0},
		},
		PulsesPerLiter: DefaultPulsesPerLiter,
		Timezone:       DefaultTimezone,
	}
}

// Validate range-checks every field. A config that fails validation is
// rejected as a whole; callers fall back to the prefs store or defaults.
func (c Config) Validate() error {
	if c.FlowActiveLpm <= 0 || c.FlowActiveLpm > 100 {
		return fmt.Errorf("flow_active_lpm %v out of range (0,100]", c.FlowActiveLpm)
	}
	if c.MinIntervalLiters < 0 || c.MinIntervalLiters > 1000 {
		return fmt.Errorf("min_interval_l %v out of range [0,1000]", c.MinIntervalLiters)
	}
	if c.ReportIntervalMs < 1000 || c.ReportIntervalMs > 3600000 {
		return fmt.Errorf("report_interval_ms %d out of range [1000,3600000]", c.ReportIntervalMs)
	}
	for i, w := range c.Windows {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
			return fmt.Errorf("window %d hour out of range [0,23]", i+1)
		}
		if w.StartMin < 0 || w.StartMin > 59 || w.EndMin < 0 || w.EndMin > 59 {
			return fmt.Errorf("window %d minute out of range [0,59]", i+1)
		}
	}
	if c.PulsesPerLiter <= 1 || c.PulsesPerLiter > 10000 {
		return fmt.Errorf("pulses_per_liter %v out of range (1,10000]", c.PulsesPerLiter)
	}
	if c.Timezone == "" || len(c.Timezone) > MaxTimezoneLen {
		return fmt.Errorf("tz_info length %d out of range [1,%d]", len(c.Timezone), MaxTimezoneLen)
	}
	return nil
}

// Schedule builds the blocked-window evaluator input from the config.
func (c Config) Schedule() schedule.Schedule {
	return schedule.Schedule{Windows: c.Windows}
}

// ReportInterval returns the reporting cadence as a duration.
func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalMs) * time.Millisecond
}

// Location resolves the configured timezone. The firmware-era "UTC0" spelling
// maps to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "UTC0" || c.Timezone == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
