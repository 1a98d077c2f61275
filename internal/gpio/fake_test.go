package gpio

import (
	"errors"
	"sync"
	"testing"
)

func TestFakePulseSourceSamples(t *testing.T) {
	f := NewFakePulseSource([]uint32{5, 0, 12})

	for i, want := range []uint32{5, 0, 12, 0, 0} {
		if got := f.TakePulses(); got != want {
			t.Errorf("sample %d: got %d, want %d", i, got, want)
		}
	}

	f.Reset()
	if got := f.TakePulses(); got != 5 {
		t.Errorf("after reset: got %d, want 5", got)
	}
}

func TestFakePulseSourceClose(t *testing.T) {
	f := NewFakePulseSource(nil)
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestCountingPulseSourceReadAndClear(t *testing.T) {
	var c CountingPulseSource
	c.Pulse()
	c.Pulse()
	c.Pulse()

	if got := c.TakePulses(); got != 3 {
		t.Errorf("TakePulses = %d, want 3", got)
	}
	if got := c.TakePulses(); got != 0 {
		t.Errorf("second TakePulses = %d, want 0 (counter cleared)", got)
	}
}

func TestCountingPulseSourceConcurrent(t *testing.T) {
	// Pulses arriving concurrently with read-and-clear must never be
	// lost or double counted.
	var c CountingPulseSource
	const pulses = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < pulses; i++ {
			c.Pulse()
		}
	}()

	var total uint32
	for i := 0; i < 1000; i++ {
		total += c.TakePulses()
	}
	wg.Wait()
	total += c.TakePulses()

	if total != pulses {
		t.Errorf("total = %d, want %d", total, pulses)
	}
}

func TestFakeValveDriver(t *testing.T) {
	f := NewFakeValveDriver()
	if f.Open() {
		t.Error("valve should start unset")
	}

	f.Set(true)
	f.Set(false)
	f.Set(true)

	if len(f.States) != 3 {
		t.Fatalf("recorded %d states, want 3", len(f.States))
	}
	if !f.Open() {
		t.Error("last driven position should be open")
	}
}

func TestFakeValveDriverError(t *testing.T) {
	f := NewFakeValveDriver()
	f.SetError = errors.New("simulated error")
	if err := f.Set(true); err == nil {
		t.Error("expected error to be returned")
	}
	if len(f.States) != 0 {
		t.Error("failed Set must not record a state")
	}
}
