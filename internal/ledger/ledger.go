package ledger

// Ledger is a fixed ring of 7 day records with a cursor on "today", plus the
// bookkeeping for the single interval that may be open at any time. It is not
// safe for concurrent use; the owning engine serializes access.
type Ledger struct {
	days  [Days]Day
	index int

	// active is the index of the open interval in the current day's list,
	// or -1 when no interval is open (including the capacity-exhausted
	// degraded mode).
	active int

	haveDate    bool
	lastYear    int
	lastYearDay int

	// skipPersist suppresses exactly one append on rollover, so a day
	// rehydrated from the usage log is not written out a second time.
	skipPersist bool
}

// New returns a ledger with all seven slots empty and no open interval.
func New() *Ledger {
	l := &Ledger{active: -1}
	for i := range l.days {
		l.days[i] = emptyDay()
	}
	return l
}

// Current returns the day record under the cursor.
func (l *Ledger) Current() *Day {
	return &l.days[l.index]
}

// IntervalOpen reports whether an interval is currently being tracked.
func (l *Ledger) IntervalOpen() bool {
	return l.active >= 0
}

// StartInterval opens a new interval at secOfDay on the current day. If the
// day's interval capacity is exhausted the open is dropped and tracking
// degrades to totals-only for the rest of the day.
func (l *Ledger) StartInterval(secOfDay uint32) {
	day := l.Current()
	if !day.AddInterval(Interval{StartSec: secOfDay, EndSec: secOfDay}) {
		l.active = -1
		return
	}
	l.active = len(day.Intervals) - 1
}

// UpdateIntervalEnd advances the open interval's end marker. No-op when no
// interval is open.
func (l *Ledger) UpdateIntervalEnd(secOfDay uint32) {
	if l.active < 0 {
		return
	}
	l.Current().Intervals[l.active].EndSec = secOfDay
}

// CloseInterval seals the open interval at secOfDay and clears the active
// index regardless of whether one was open.
func (l *Ledger) CloseInterval(secOfDay uint32) {
	if l.active >= 0 {
		l.Current().Intervals[l.active].EndSec = secOfDay
	}
	l.active = -1
}

// AddFlow records one second of active flow: it bumps the day totals and, if
// an interval is open, attributes the liters to it and extends its end.
func (l *Ledger) AddFlow(secOfDay uint32, liters float64) {
	day := l.Current()
	day.TotalSeconds++
	day.TotalLiters += liters
	if l.active >= 0 {
		day.Intervals[l.active].Liters += liters
		day.Intervals[l.active].EndSec = secOfDay
	}
}

// Week returns copies of the populated day records in chronological order,
// ending with the current day.
func (l *Ledger) Week() []Day {
	out := make([]Day, 0, Days)
	for i := Days - 1; i >= 0; i-- {
		idx := (l.index - i + Days) % Days
		if l.days[idx].Empty() {
			continue
		}
		day := l.days[idx]
		day.Intervals = append([]Interval(nil), l.days[idx].Intervals...)
		out = append(out, day)
	}
	return out
}

// WeekTotals sums seconds and liters across all populated slots.
func (l *Ledger) WeekTotals() (seconds uint32, liters float64) {
	for i := range l.days {
		if l.days[i].Empty() {
			continue
		}
		seconds += l.days[i].TotalSeconds
		liters += l.days[i].TotalLiters
	}
	return seconds, liters
}
