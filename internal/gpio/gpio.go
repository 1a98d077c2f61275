// Package gpio provides the flow-sensor pulse input and the valve output
// with hardware abstraction. The real implementation uses the Linux GPIO
// character device; the fakes allow testing without hardware.
package gpio

// Default pin assignments (BCM numbering).
const (
	DefaultPinPulse = 22 // flow sensor pulse input
	DefaultPinValve = 23 // valve relay output
)

// PulseSource counts flow-sensor pulses. The edge handler only increments a
// counter; the control loop takes the count with one atomic read-and-clear
// per tick, which is the only concurrent shared-state access in the system.
type PulseSource interface {
	// TakePulses atomically returns the pulses counted since the last
	// call and resets the counter.
	TakePulses() uint32

	// Close releases GPIO resources.
	Close() error
}

// ValveDriver actuates the valve relay.
type ValveDriver interface {
	// Set drives the valve fully open (true) or fully closed (false).
	Set(open bool) error

	// Close releases GPIO resources, leaving the valve position as-is.
	Close() error
}
