package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/water-meter/internal/engine"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe(engine.Snapshot{
		TimeValid:   true,
		ValveOpen:   true,
		Override:    false,
		FlowLpm:     3.5,
		TotalLiters: 100,
		DailyLiters: 12.5,
		WeekLiters:  80,
	})

	if got := testutil.ToFloat64(m.FlowRateLpm); got != 3.5 {
		t.Errorf("flow gauge = %v, want 3.5", got)
	}
	if got := testutil.ToFloat64(m.DailyLiters); got != 12.5 {
		t.Errorf("daily gauge = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(m.ValveOpen); got != 1 {
		t.Errorf("valve gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ValveOverride); got != 0 {
		t.Errorf("override gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.TicksTotal); got != 1 {
		t.Errorf("ticks = %v, want 1", got)
	}
}

func TestRecordEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordEvent(engine.Event{Timestamp: time.Now(), Type: engine.EventValveClosed})
	m.RecordEvent(engine.Event{Timestamp: time.Now(), Type: engine.EventValveOpened, Manual: true})
	m.RecordEvent(engine.Event{Timestamp: time.Now(), Type: engine.EventDayFinalized})

	if got := testutil.ToFloat64(m.ValveTransitions.WithLabelValues("close", "auto")); got != 1 {
		t.Errorf("auto close count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ValveTransitions.WithLabelValues("open", "manual")); got != 1 {
		t.Errorf("manual open count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Rollovers); got != 1 {
		t.Errorf("rollovers = %v, want 1", got)
	}
}
