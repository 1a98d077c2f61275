package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	TimeValid     bool       `json:"time_valid"`
	Date          string     `json:"date,omitempty"`
	Time          string     `json:"time,omitempty"`
	Valve         ValveJSON  `json:"valve"`
	FlowLpm       float64    `json:"flow_lpm"`
	TotalLiters   float64    `json:"total_l"`
	DailyLiters   float64    `json:"daily_l"`
	Week          WeekJSON   `json:"week"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// ValveJSON reports the valve state machine.
type ValveJSON struct {
	State    string `json:"state"`
	Open     bool   `json:"open"`
	Override bool   `json:"override"`
}

// WeekJSON is the rolling seven-day total.
type WeekJSON struct {
	TotalSeconds uint32  `json:"total_sec"`
	TotalLiters  float64 `json:"total_l"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of the active configuration.
type ConfigJSON struct {
	FlowActiveLpm     float64 `json:"flow_active_lpm"`
	MinIntervalLiters float64 `json:"min_interval_l"`
	ReportIntervalMs  uint32  `json:"report_interval_ms"`
	PulsesPerLiter    float64 `json:"pulses_per_liter"`
	Timezone          string  `json:"tz_info"`
	HTTPAddr          string  `json:"http_addr"`
	DataDir           string  `json:"data_dir"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		TimeValid: snap.Meter.TimeValid,
		Valve: ValveJSON{
			State:    string(snap.Meter.ValveState),
			Open:     snap.Meter.ValveOpen,
			Override: snap.Meter.Override,
		},
		FlowLpm:     snap.Meter.FlowLpm,
		TotalLiters: snap.Meter.TotalLiters,
		DailyLiters: snap.Meter.DailyLiters,
		Week: WeekJSON{
			TotalSeconds: snap.Meter.WeekSeconds,
			TotalLiters:  snap.Meter.WeekLiters,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			FlowActiveLpm:     snap.Meter.Config.FlowActiveLpm,
			MinIntervalLiters: snap.Meter.Config.MinIntervalLiters,
			ReportIntervalMs:  snap.Meter.Config.ReportIntervalMs,
			PulsesPerLiter:    snap.Meter.Config.PulsesPerLiter,
			Timezone:          snap.Meter.Config.Timezone,
			HTTPAddr:          snap.Config.HTTPAddr,
			DataDir:           snap.Config.DataDir,
		},
	}
	if snap.Meter.TimeValid {
		inner.Date = snap.MeterTime.Format("2006-01-02")
		inner.Time = snap.MeterTime.Format("15:04:05")
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
