//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// MinPulseGap rejects edges that arrive too close together (sensor ringing
// and electrical noise).
const MinPulseGap = 300 * time.Microsecond

// RealPulseSource counts rising edges on the flow-sensor pin using Linux
// GPIO character device edge events.
type RealPulseSource struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line

	count atomic.Uint32

	// lastEdge is only touched by the event handler goroutine.
	lastEdge time.Duration
}

// NewRealPulseSource requests the pulse pin as input with rising-edge events.
func NewRealPulseSource(pin int) (*RealPulseSource, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPulseSource{chip: chip}
	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(p.onEdge))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pulse pin %d: %w", pin, err)
	}
	p.line = line
	return p, nil
}

// onEdge runs on the event goroutine: debounce on the kernel timestamp, then
// a single counter increment. Nothing else may happen here.
func (p *RealPulseSource) onEdge(evt gpiocdev.LineEvent) {
	if p.lastEdge != 0 && evt.Timestamp-p.lastEdge < MinPulseGap {
		return
	}
	p.lastEdge = evt.Timestamp
	p.count.Add(1)
}

// TakePulses returns and clears the pulse count in one atomic step.
func (p *RealPulseSource) TakePulses() uint32 {
	return p.count.Swap(0)
}

// Close releases the pulse line and chip.
func (p *RealPulseSource) Close() error {
	var errs []error
	if p.line != nil {
		if err := p.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pulse line: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealValveDriver drives the valve relay through an output line.
type RealValveDriver struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealValveDriver requests the valve pin as output, initially closed.
func NewRealValveDriver(pin int) (*RealValveDriver, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request valve pin %d: %w", pin, err)
	}
	return &RealValveDriver{chip: chip, line: line}, nil
}

// Set drives the relay: high opens the valve, low closes it.
func (d *RealValveDriver) Set(open bool) error {
	v := 0
	if open {
		v = 1
	}
	if err := d.line.SetValue(v); err != nil {
		return fmt.Errorf("set valve pin: %w", err)
	}
	return nil
}

// Close releases the valve line and chip without changing the relay state.
func (d *RealValveDriver) Close() error {
	var errs []error
	if d.line != nil {
		if err := d.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close valve line: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
