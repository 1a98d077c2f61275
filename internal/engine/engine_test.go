package engine

import (
	"testing"
	"time"

	"github.com/sweeney/water-meter/internal/clock"
	"github.com/sweeney/water-meter/internal/config"
	"github.com/sweeney/water-meter/internal/gpio"
	"github.com/sweeney/water-meter/internal/ledger"
	"github.com/sweeney/water-meter/internal/schedule"
)

type fakeStore struct {
	days    []ledger.Day
	configs []config.Config
	dayErr  error
}

func (s *fakeStore) AppendDay(d ledger.Day) error {
	if s.dayErr != nil {
		return s.dayErr
	}
	s.days = append(s.days, d)
	return nil
}

func (s *fakeStore) SaveConfig(c config.Config) error {
	s.configs = append(s.configs, c)
	return nil
}

// testConfig uses one 08:00-09:00 blocked window so tests can cross the
// window boundary without crossing midnight.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Windows[0] = schedule.Window{StartHour: 8, EndHour: 9}
	return cfg
}

func newTestEngine(clk clock.Clock) (*Engine, *gpio.FakeValveDriver, *fakeStore) {
	driver := gpio.NewFakeValveDriver()
	store := &fakeStore{}
	e := New(Options{
		Config:   testConfig(),
		Clock:    clk,
		Actuator: driver,
		Persist:  store,
	})
	return e, driver, store
}

func TestTickAccumulatesFlow(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	e, _, _ := newTestEngine(clk)

	// 450 pulses/L: 45 pulses per one-second tick is 6 L/min, 0.1 L/tick.
	for i := 0; i < 90; i++ {
		now, valid := clk.Now()
		e.Tick(now, valid, 45)
		clk.Advance(time.Second)
	}

	snap := e.Snapshot()
	if got, want := snap.FlowLpm, 6.0; got != want {
		t.Errorf("FlowLpm = %v, want %v", got, want)
	}
	if got, want := snap.TotalLiters, 9.0; !almost(got, want) {
		t.Errorf("TotalLiters = %v, want %v", got, want)
	}
	if got, want := snap.DailyLiters, 9.0; !almost(got, want) {
		t.Errorf("DailyLiters = %v, want %v", got, want)
	}
	if snap.WeekSeconds != 90 {
		t.Errorf("WeekSeconds = %d, want 90", snap.WeekSeconds)
	}
}

func TestFlowIntervalLifecycle(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	e, _, _ := newTestEngine(clk)

	for i := 0; i < 30; i++ {
		now, valid := clk.Now()
		e.Tick(now, valid, 45)
		clk.Advance(time.Second)
	}
	// Flow stops; the idle tick closes the interval.
	now, valid := clk.Now()
	e.Tick(now, valid, 0)

	week := e.Week()
	if len(week) != 1 {
		t.Fatalf("week has %d days, want 1", len(week))
	}
	day := week[0]
	if len(day.Intervals) != 1 {
		t.Fatalf("day has %d intervals, want 1", len(day.Intervals))
	}
	iv := day.Intervals[0]
	if iv.StartSec != 12*3600 {
		t.Errorf("StartSec = %d, want %d", iv.StartSec, 12*3600)
	}
	if iv.EndSec != 12*3600+30 {
		t.Errorf("EndSec = %d, want %d", iv.EndSec, 12*3600+30)
	}
	if !almost(iv.Liters, 3.0) {
		t.Errorf("interval Liters = %v, want 3.0", iv.Liters)
	}
}

func TestMidnightRolloverPersistsDay(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 23, 59, 58, 0, time.UTC))
	e, _, store := newTestEngine(clk)

	for i := 0; i < 2; i++ {
		now, valid := clk.Now()
		e.Tick(now, valid, 45)
		clk.Advance(time.Second)
	}
	// First tick of the new day, flow still running.
	now, valid := clk.Now()
	events := e.Tick(now, valid, 45)

	var finalized *Event
	for i := range events {
		if events[i].Type == EventDayFinalized {
			finalized = &events[i]
		}
	}
	if finalized == nil {
		t.Fatal("expected a day-finalized event")
	}
	if finalized.Day.Date.Day != 10 {
		t.Errorf("finalized day = %d, want 10", finalized.Day.Date.Day)
	}

	if len(store.days) != 1 {
		t.Fatalf("persisted %d days, want 1", len(store.days))
	}
	out := store.days[0]
	if len(out.Intervals) != 1 || out.Intervals[0].EndSec != ledger.EndOfDaySec {
		t.Errorf("outgoing interval not sealed at %d: %+v", ledger.EndOfDaySec, out.Intervals)
	}

	week := e.Week()
	today := week[len(week)-1]
	if today.Date.Day != 11 {
		t.Errorf("cursor day = %d, want 11", today.Date.Day)
	}
	if len(today.Intervals) != 1 || today.Intervals[0].StartSec != 0 {
		t.Errorf("new day should reopen its interval at 0: %+v", today.Intervals)
	}
}

func TestWindowClosesAndReopensValve(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 7, 59, 0, 0, time.UTC))
	e, driver, _ := newTestEngine(clk)

	if !driver.Open() {
		t.Fatal("valve should boot open outside the window")
	}

	now, valid := clk.Now()
	if events := e.Tick(now, valid, 0); len(events) != 0 {
		t.Errorf("tick before window produced events: %v", events)
	}

	clk.Advance(time.Minute) // 08:00
	now, valid = clk.Now()
	events := e.Tick(now, valid, 0)
	if len(events) != 1 || events[0].Type != EventValveClosed || events[0].Manual {
		t.Fatalf("window entry: got %v, want one automatic close", events)
	}
	if driver.Open() {
		t.Error("driver should be closed inside the window")
	}

	// Repeat tick inside the window is idempotent.
	clk.Advance(time.Minute)
	now, valid = clk.Now()
	if events := e.Tick(now, valid, 0); len(events) != 0 {
		t.Errorf("repeat tick produced events: %v", events)
	}

	clk.Advance(59 * time.Minute) // 09:00
	now, valid = clk.Now()
	events = e.Tick(now, valid, 0)
	if len(events) != 1 || events[0].Type != EventValveOpened || events[0].Manual {
		t.Fatalf("window exit: got %v, want one automatic open", events)
	}
	if !driver.Open() {
		t.Error("driver should be open after the window")
	}
}

func TestBootInsideWindowStartsClosed(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))
	e, driver, _ := newTestEngine(clk)

	if driver.Open() {
		t.Error("valve should boot closed inside the window")
	}
	if got := e.Snapshot().ValveState; got != schedule.AutoClosed {
		t.Errorf("state = %v, want %v", got, schedule.AutoClosed)
	}
}

func TestManualOpenInsideWindowHolds(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))
	e, driver, _ := newTestEngine(clk)

	ev := e.ManualOpen()
	if ev == nil || ev.Type != EventValveOpened || !ev.Manual {
		t.Fatalf("ManualOpen event = %v, want manual open", ev)
	}
	if got := e.Snapshot().ValveState; got != schedule.OverrideOpen {
		t.Errorf("state = %v, want %v", got, schedule.OverrideOpen)
	}

	// Automatic control must not fight the override inside the window.
	for i := 0; i < 10; i++ {
		clk.Advance(time.Minute)
		now, valid := clk.Now()
		if events := e.Tick(now, valid, 0); len(events) != 0 {
			t.Fatalf("override tick %d produced events: %v", i, events)
		}
	}
	if !driver.Open() {
		t.Error("valve should stay open under override")
	}

	// 09:00: membership flips, override releases, open already matches.
	clk.Advance(20 * time.Minute)
	now, valid := clk.Now()
	if events := e.Tick(now, valid, 0); len(events) != 0 {
		t.Errorf("release tick produced events: %v", events)
	}
	if got := e.Snapshot().ValveState; got != schedule.AutoOpen {
		t.Errorf("state = %v, want %v", got, schedule.AutoOpen)
	}
}

func TestManualOpenForcedClosedAtWindowStart(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC))
	e, driver, _ := newTestEngine(clk)

	// Already open, so no event, but the override still latches.
	if ev := e.ManualOpen(); ev != nil {
		t.Fatalf("ManualOpen while open returned event %v", ev)
	}
	if got := e.Snapshot().ValveState; got != schedule.OverrideOpen {
		t.Fatalf("state = %v, want %v", got, schedule.OverrideOpen)
	}

	clk.Advance(time.Hour) // 08:00, window starts
	now, valid := clk.Now()
	events := e.Tick(now, valid, 0)
	if len(events) != 1 || events[0].Type != EventValveClosed || events[0].Manual {
		t.Fatalf("window start: got %v, want one automatic close", events)
	}
	if driver.Open() {
		t.Error("valve should be closed once the override releases into the window")
	}
}

func TestManualCloseOutsideWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	e, driver, _ := newTestEngine(clk)

	ev := e.ManualClose()
	if ev == nil || ev.Type != EventValveClosed || !ev.Manual {
		t.Fatalf("ManualClose event = %v, want manual close", ev)
	}

	// Stays closed through ordinary ticks.
	for i := 0; i < 5; i++ {
		clk.Advance(time.Minute)
		now, valid := clk.Now()
		if events := e.Tick(now, valid, 0); len(events) != 0 {
			t.Fatalf("override tick produced events: %v", events)
		}
	}
	if driver.Open() {
		t.Error("valve should stay closed under override")
	}
}

func TestInvalidTimeSuppressesAccounting(t *testing.T) {
	clk := &clock.Fake{T: time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC), Valid: false}
	e, driver, store := newTestEngine(clk)

	// Fail-open: 08:30 is inside the window but the clock is untrusted.
	if !driver.Open() {
		t.Fatal("valve should boot open when time is invalid")
	}

	now, valid := clk.Now()
	events := e.Tick(now, valid, 45)
	if len(events) != 0 {
		t.Errorf("invalid-time tick produced events: %v", events)
	}

	snap := e.Snapshot()
	if !almost(snap.TotalLiters, 0.1) {
		t.Errorf("TotalLiters = %v, want 0.1 (flow math still runs)", snap.TotalLiters)
	}
	if snap.DailyLiters != 0 || snap.WeekSeconds != 0 {
		t.Error("ledger must not advance without trusted time")
	}
	if len(store.days) != 0 {
		t.Error("nothing should persist without trusted time")
	}
}

func TestInvalidTimeKeepsManualClose(t *testing.T) {
	clk := &clock.Fake{T: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), Valid: false}
	e, driver, _ := newTestEngine(clk)

	if ev := e.ManualClose(); ev == nil {
		t.Fatal("expected a manual close event")
	}
	now, valid := clk.Now()
	if events := e.Tick(now, valid, 0); len(events) != 0 {
		t.Errorf("tick reopened an overridden valve: %v", events)
	}
	if driver.Open() {
		t.Error("manual close must hold while time is invalid")
	}
}

func TestResetCounters(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	e, _, _ := newTestEngine(clk)

	now, valid := clk.Now()
	e.Tick(now, valid, 45)
	e.ResetCounters()

	snap := e.Snapshot()
	if snap.TotalLiters != 0 || snap.FlowLpm != 0 {
		t.Errorf("counters not cleared: total=%v rate=%v", snap.TotalLiters, snap.FlowLpm)
	}
	if !almost(snap.DailyLiters, 0.1) {
		t.Errorf("DailyLiters = %v, want 0.1 (ledger untouched)", snap.DailyLiters)
	}
}

func TestUpdateConfig(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	e, driver, store := newTestEngine(clk)

	bad := testConfig()
	bad.PulsesPerLiter = 0
	if err := e.UpdateConfig(bad); err == nil {
		t.Fatal("invalid config accepted")
	}
	if len(store.configs) != 0 {
		t.Fatal("invalid config must not be persisted")
	}

	var gotLoc *time.Location
	e.TimezoneChanged = func(loc *time.Location) { gotLoc = loc }

	// Move the window over the current time; the next tick must close.
	cfg := testConfig()
	cfg.Windows[0] = schedule.Window{StartHour: 11, EndHour: 13}
	cfg.Timezone = "UTC"
	if err := e.UpdateConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.configs) != 1 {
		t.Fatalf("persisted %d configs, want 1", len(store.configs))
	}
	if gotLoc != time.UTC {
		t.Errorf("timezone hook got %v, want UTC", gotLoc)
	}

	now, valid := clk.Now()
	events := e.Tick(now, valid, 0)
	if len(events) != 1 || events[0].Type != EventValveClosed {
		t.Fatalf("got %v, want close after window change", events)
	}
	if driver.Open() {
		t.Error("driver should be closed inside the new window")
	}
}

func TestRestoreSeedsWeekTotals(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	e, _, _ := newTestEngine(clk)

	history := []ledger.Day{
		{Date: ledger.DateOf(time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)), TotalSeconds: 100, TotalLiters: 5},
		{Date: ledger.DateOf(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)), TotalSeconds: 200, TotalLiters: 10},
	}
	e.Restore(history)

	snap := e.Snapshot()
	if snap.WeekSeconds != 300 {
		t.Errorf("WeekSeconds = %d, want 300", snap.WeekSeconds)
	}
	if !almost(snap.WeekLiters, 15) {
		t.Errorf("WeekLiters = %v, want 15", snap.WeekLiters)
	}
}

func almost(got, want float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
