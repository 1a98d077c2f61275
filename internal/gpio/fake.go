package gpio

import "sync/atomic"

// FakePulseSource is a test double that returns scripted pulse counts.
type FakePulseSource struct {
	// Samples contains scripted per-tick pulse counts. Each call to
	// TakePulses consumes the next sample; when exhausted it returns 0.
	Samples []uint32

	index int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePulseSource creates a FakePulseSource with the given samples.
func NewFakePulseSource(samples []uint32) *FakePulseSource {
	return &FakePulseSource{Samples: samples}
}

// TakePulses returns the next scripted sample, or 0 once exhausted.
func (f *FakePulseSource) TakePulses() uint32 {
	if f.index >= len(f.Samples) {
		return 0
	}
	n := f.Samples[f.index]
	f.index++
	return n
}

// Close marks the source as closed.
func (f *FakePulseSource) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the source to the beginning of its samples.
func (f *FakePulseSource) Reset() {
	f.index = 0
	f.Closed = false
}

// CountingPulseSource is an atomic counter without hardware behind it, used
// by tests that exercise the read-and-clear contract concurrently.
type CountingPulseSource struct {
	count atomic.Uint32
}

// Pulse simulates one sensor edge.
func (c *CountingPulseSource) Pulse() {
	c.count.Add(1)
}

// TakePulses returns and clears the count in one atomic step.
func (c *CountingPulseSource) TakePulses() uint32 {
	return c.count.Swap(0)
}

// Close is a no-op.
func (c *CountingPulseSource) Close() error { return nil }

// FakeValveDriver records valve actuations for test assertions.
type FakeValveDriver struct {
	// States records every Set call in order.
	States []bool

	// SetError, if set, is returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeValveDriver creates a FakeValveDriver.
func NewFakeValveDriver() *FakeValveDriver {
	return &FakeValveDriver{}
}

// Set records the requested valve position.
func (f *FakeValveDriver) Set(open bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.States = append(f.States, open)
	return nil
}

// Open reports the last position driven, false if none.
func (f *FakeValveDriver) Open() bool {
	if len(f.States) == 0 {
		return false
	}
	return f.States[len(f.States)-1]
}

// Close marks the driver as closed.
func (f *FakeValveDriver) Close() error {
	f.Closed = true
	return nil
}
