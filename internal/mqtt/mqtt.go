// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/water-meter/internal/engine"
)

// Topic is the MQTT topic for water-meter events.
const Topic = "home/water/meter/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/water/meter/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a meter event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event engine.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Water WaterPayload `json:"water"`
}

// WaterPayload contains the meter event details.
type WaterPayload struct {
	Timestamp   string      `json:"timestamp"`
	Event       string      `json:"event"`
	Manual      bool        `json:"manual,omitempty"`
	FlowLpm     float64     `json:"flow_lpm"`
	DailyLiters float64     `json:"daily_l"`
	Day         *DayPayload `json:"day,omitempty"`
}

// DayPayload carries the finalized day on rollover events.
type DayPayload struct {
	Date         string  `json:"date"`
	TotalSeconds uint32  `json:"total_sec"`
	TotalLiters  float64 `json:"total_l"`
}

// FormatPayload creates the JSON payload for a meter event.
func FormatPayload(event engine.Event) ([]byte, error) {
	payload := Payload{
		Water: WaterPayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
			Event:       string(event.Type),
			Manual:      event.Manual,
			FlowLpm:     event.FlowLpm,
			DailyLiters: event.DailyLiters,
		},
	}
	if event.Day != nil {
		payload.Water.Day = &DayPayload{
			Date: fmt.Sprintf("%04d-%02d-%02d",
				event.Day.Date.Year, event.Day.Date.Month, event.Day.Date.Day),
			TotalSeconds: event.Day.TotalSeconds,
			TotalLiters:  event.Day.TotalLiters,
		}
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
