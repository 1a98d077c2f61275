//go:build !linux

package gpio

import "errors"

// RealPulseSource is not available on non-Linux platforms.
type RealPulseSource struct{}

// NewRealPulseSource returns an error on non-Linux platforms.
func NewRealPulseSource(pin int) (*RealPulseSource, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// TakePulses is not implemented on non-Linux platforms.
func (p *RealPulseSource) TakePulses() uint32 { return 0 }

// Close is not implemented on non-Linux platforms.
func (p *RealPulseSource) Close() error { return nil }

// RealValveDriver is not available on non-Linux platforms.
type RealValveDriver struct{}

// NewRealValveDriver returns an error on non-Linux platforms.
func NewRealValveDriver(pin int) (*RealValveDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (d *RealValveDriver) Set(open bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealValveDriver) Close() error { return nil }
