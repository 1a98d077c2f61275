// Package clock provides the wall-clock reading consumed by the metering
// core, including the validity flag that gates all time-dependent logic
// until the clock can be trusted.
package clock

import (
	"sync"
	"time"
)

// Clock yields the current local time plus a validity flag. When valid is
// false the engine suppresses rollover, window evaluation, and persistence.
type Clock interface {
	Now() (t time.Time, valid bool)
}

// The system clock is considered unsynchronized until it reads past this
// point, mirroring the firmware's wait for time sync after boot.
var minValidTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// System reads the OS clock in a configurable location.
type System struct {
	mu  sync.RWMutex
	loc *time.Location
}

// NewSystem creates a system clock in the given location (UTC when nil).
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

// Now returns the current time in the configured location.
func (s *System) Now() (time.Time, bool) {
	s.mu.RLock()
	loc := s.loc
	s.mu.RUnlock()
	t := time.Now().In(loc)
	return t, t.After(minValidTime)
}

// SetLocation swaps the timezone, e.g. after a config update.
func (s *System) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	s.mu.Lock()
	s.loc = loc
	s.mu.Unlock()
}

// Fake is a scripted clock for tests.
type Fake struct {
	T     time.Time
	Valid bool
}

// NewFake creates a valid fake clock at the given instant.
func NewFake(t time.Time) *Fake {
	return &Fake{T: t, Valid: true}
}

// Now returns the scripted reading.
func (f *Fake) Now() (time.Time, bool) {
	return f.T, f.Valid
}

// Advance moves the fake clock forward.
func (f *Fake) Advance(d time.Duration) {
	f.T = f.T.Add(d)
}
