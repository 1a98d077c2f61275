// Package status provides a thread-safe status tracker for the water-meter
// daemon. It is read by HTTP handlers and the MQTT system-event publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/water-meter/internal/engine"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker   string
	HTTPAddr string
	DataDir  string
	TickMs   int64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Meter         engine.Snapshot
	MeterTime     time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the latest engine snapshot and the clock reading it was
// taken at. Called from the control loop on every tick.
func (t *Tracker) Update(meter engine.Snapshot, now time.Time) {
	t.mu.Lock()
	t.snap.Meter = meter
	t.snap.MeterTime = now
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
