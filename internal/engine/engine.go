// Package engine owns the mutable metering state (ledger, valve state
// machine, flow totals) and runs one accounting tick in the order the core
// requires: rollover first, then interval classification, then blocked-window
// valve control.
package engine

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/water-meter/internal/clock"
	"github.com/sweeney/water-meter/internal/config"
	"github.com/sweeney/water-meter/internal/ledger"
	"github.com/sweeney/water-meter/internal/schedule"
)

// Actuator drives the physical valve. Actuation failures are logged, not
// fatal; the logical valve state still advances so control can retry.
type Actuator interface {
	Set(open bool) error
}

// Persistence is the slice of the store the engine needs: appending
// finalized days and rewriting the config row.
type Persistence interface {
	AppendDay(day ledger.Day) error
	SaveConfig(cfg config.Config) error
}

// EventType labels the externally visible things a tick can produce.
type EventType string

const (
	EventValveOpened  EventType = "VALVE_OPEN"
	EventValveClosed  EventType = "VALVE_CLOSE"
	EventDayFinalized EventType = "DAY_ROLLOVER"
)

// Event is one externally visible occurrence, returned from Tick or the
// manual commands for the caller to publish.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Manual    bool // valve events: true when caused by a manual command

	FlowLpm     float64
	DailyLiters float64

	// Day is the finalized day record on EventDayFinalized.
	Day *ledger.Day
}

// Snapshot is a point-in-time copy of the engine state for status surfaces.
type Snapshot struct {
	TimeValid   bool
	ValveOpen   bool
	ValveState  schedule.State
	Override    bool
	FlowLpm     float64
	TotalLiters float64
	DailyLiters float64
	WeekSeconds uint32
	WeekLiters  float64
	Config      config.Config
}

// Engine is the explicit context object holding all mutable metering state.
// The accounting tick runs on the control loop; HTTP handlers call the
// manual/query methods from other goroutines, so one mutex guards it all.
type Engine struct {
	mu sync.Mutex

	cfg   config.Config
	sched schedule.Schedule

	led   *ledger.Ledger
	valve *schedule.Valve

	clk      clock.Clock
	actuator Actuator
	persist  Persistence
	prefs    config.Prefs

	flowActive  bool
	flowRateLpm float64
	totalLiters float64
	timeValid   bool

	// TimezoneChanged, if set, is invoked after a config update changes
	// the timezone so the owner can retune the clock.
	TimezoneChanged func(loc *time.Location)
}

// Options wires the engine's collaborators. Prefs may be nil.
type Options struct {
	Config   config.Config
	Clock    clock.Clock
	Actuator Actuator
	Persist  Persistence
	Prefs    config.Prefs
}

// New creates an engine and actuates the valve to its initial position:
// closed when boot time is valid and inside a blocked window, open otherwise
// (fail-open when the clock cannot be trusted).
func New(opts Options) *Engine {
	e := &Engine{
		cfg:      opts.Config,
		sched:    opts.Config.Schedule(),
		led:      ledger.New(),
		clk:      opts.Clock,
		actuator: opts.Actuator,
		persist:  opts.Persist,
		prefs:    opts.Prefs,
	}

	open := true
	if now, valid := e.clk.Now(); valid {
		open = !e.sched.Blocked(now.Hour(), now.Minute())
		e.timeValid = true
	}
	e.valve = schedule.NewValve(open)
	e.drive(open)
	return e
}

// Restore replays persisted history into the ledger. Call once, before the
// first tick.
func (e *Engine) Restore(history []ledger.Day) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.led.Rehydrate(history); ok {
		log.Printf("restored %d day(s) of history, last %04d-%02d-%02d",
			len(history), last.Year, last.Month, last.Day)
	}
}

// Tick runs one accounting step with the given wall-clock reading and the
// pulses counted since the previous tick. Ticks are nominally one second
// apart. It returns the tick's externally visible events in occurrence
// order.
func (e *Engine) Tick(now time.Time, valid bool, pulses uint32) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Flow math happens even without trusted time.
	e.flowRateLpm = float64(pulses) * 60.0 / e.cfg.PulsesPerLiter
	liters := e.flowRateLpm / 60.0
	e.totalLiters += liters
	e.timeValid = valid

	var events []Event

	if !valid {
		// Clock not trusted: suppress rollover, interval tracking and
		// window evaluation; hold the fail-open policy.
		if !e.valve.Overridden() {
			if action := e.valve.Evaluate(false); action == schedule.ActionOpen {
				e.drive(true)
				events = append(events, e.valveEvent(now, EventValveOpened, false))
			}
		}
		return events
	}

	// 1. Rollover before anything touches the current slot.
	finalized, _ := e.led.EnsureDaySlot(ledger.DateOf(now), e.flowActive)
	if finalized != nil {
		if err := e.persist.AppendDay(*finalized); err != nil {
			log.Printf("persist day failed: %v", err)
		}
		day := *finalized
		events = append(events, Event{
			Timestamp: now,
			Type:      EventDayFinalized,
			FlowLpm:   e.flowRateLpm,
			Day:       &day,
		})
	}

	// 2. Classify the tick and run the interval tracker.
	secOfDay := uint32(now.Hour()*3600 + now.Minute()*60 + now.Second())
	active := e.flowRateLpm > e.cfg.FlowActiveLpm
	switch {
	case active && !e.flowActive:
		e.led.StartInterval(secOfDay)
	case !active && e.flowActive:
		e.led.CloseInterval(secOfDay)
	}
	e.flowActive = active
	if active {
		e.led.AddFlow(secOfDay, liters)
	}

	// 3. Blocked-window valve control.
	blocked := e.sched.Blocked(now.Hour(), now.Minute())
	switch e.valve.Evaluate(blocked) {
	case schedule.ActionOpen:
		e.drive(true)
		events = append(events, e.valveEvent(now, EventValveOpened, false))
	case schedule.ActionClose:
		e.drive(false)
		events = append(events, e.valveEvent(now, EventValveClosed, false))
	}

	return events
}

// ManualOpen forces the valve open, entering override mode against the
// blocked-window membership at this moment.
func (e *Engine) ManualOpen() *Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	now, blocked := e.membership()
	if e.valve.ForceOpen(blocked) == schedule.ActionOpen {
		e.drive(true)
		ev := e.valveEvent(now, EventValveOpened, true)
		return &ev
	}
	return nil
}

// ManualClose forces the valve closed, entering override mode.
func (e *Engine) ManualClose() *Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	now, blocked := e.membership()
	if e.valve.ForceClose(blocked) == schedule.ActionClose {
		e.drive(false)
		ev := e.valveEvent(now, EventValveClosed, true)
		return &ev
	}
	return nil
}

// ResetCounters clears the process-wide volume accumulator and the last
// measured rate. Ledger history is untouched.
func (e *Engine) ResetCounters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalLiters = 0
	e.flowRateLpm = 0
	log.Printf("counters reset")
}

// UpdateConfig validates, applies, and persists a new configuration.
func (e *Engine) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	tzChanged := cfg.Timezone != e.cfg.Timezone
	e.cfg = cfg
	e.sched = cfg.Schedule()
	e.mu.Unlock()

	if err := e.persist.SaveConfig(cfg); err != nil {
		return err
	}
	if e.prefs != nil {
		if err := e.prefs.Save(cfg); err != nil {
			log.Printf("prefs save failed: %v", err)
		}
	}
	if tzChanged && e.TimezoneChanged != nil {
		if loc, err := cfg.Location(); err == nil {
			e.TimezoneChanged(loc)
		} else {
			log.Printf("timezone %q not applied: %v", cfg.Timezone, err)
		}
	}
	return nil
}

// Config returns the active configuration.
func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Week returns the rolling week's day records, oldest first.
func (e *Engine) Week() []ledger.Day {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.led.Week()
}

// Snapshot copies the engine state for the status surfaces.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	weekSec, weekLiters := e.led.WeekTotals()
	daily := 0.0
	if !e.led.Current().Empty() {
		daily = e.led.Current().TotalLiters
	}
	return Snapshot{
		TimeValid:   e.timeValid,
		ValveOpen:   e.valve.Open(),
		ValveState:  e.valve.State(),
		Override:    e.valve.Overridden(),
		FlowLpm:     e.flowRateLpm,
		TotalLiters: e.totalLiters,
		DailyLiters: daily,
		WeekSeconds: weekSec,
		WeekLiters:  weekLiters,
		Config:      e.cfg,
	}
}

// membership reads the clock and evaluates blocked-window membership,
// treating invalid time as unblocked.
func (e *Engine) membership() (time.Time, bool) {
	now, valid := e.clk.Now()
	if !valid {
		return now, false
	}
	return now, e.sched.Blocked(now.Hour(), now.Minute())
}

func (e *Engine) drive(open bool) {
	if err := e.actuator.Set(open); err != nil {
		log.Printf("valve actuation failed: %v", err)
	}
}

func (e *Engine) valveEvent(now time.Time, typ EventType, manual bool) Event {
	daily := 0.0
	if !e.led.Current().Empty() {
		daily = e.led.Current().TotalLiters
	}
	return Event{
		Timestamp:   now,
		Type:        typ,
		Manual:      manual,
		FlowLpm:     e.flowRateLpm,
		DailyLiters: daily,
	}
}
