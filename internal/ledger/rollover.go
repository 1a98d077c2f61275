package ledger

// EnsureDaySlot detects a calendar-day change and advances the ring.
//
// On the first call ever it simply claims the current slot for the given
// date. On a day change it closes any open interval at end-of-day, hands the
// outgoing record back for persistence (unless the skip flag is set or the
// slot is empty), advances the cursor over the oldest slot, and, if flow is
// still active, immediately reopens an interval at second 0 so a flow event
// spanning midnight is split across both days instead of lost.
//
// The returned finalize value is non-nil only when the caller must append the
// outgoing day to the usage log. rolled reports whether the cursor advanced.
func (l *Ledger) EnsureDaySlot(date Date, flowActive bool) (finalize *Day, rolled bool) {
	if l.haveDate && date.Year == l.lastYear && date.YearDay == l.lastYearDay {
		return nil, false
	}

	if !l.haveDate {
		l.haveDate = true
		l.lastYear = date.Year
		l.lastYearDay = date.YearDay
		if l.Current().Empty() {
			l.days[l.index].reset(date)
			return nil, false
		}
		// Rehydrated ledger whose newest day is already behind the
		// clock: fall through and roll into today.
	}
	l.lastYear = date.Year
	l.lastYearDay = date.YearDay

	if flowActive {
		l.CloseInterval(EndOfDaySec)
	}

	outgoing := l.Current()
	if !outgoing.Empty() && !l.skipPersist {
		copied := *outgoing
		copied.Intervals = append([]Interval(nil), outgoing.Intervals...)
		finalize = &copied
	}
	l.skipPersist = false

	l.index = (l.index + 1) % Days
	l.days[l.index].reset(date)
	l.active = -1

	if flowActive {
		l.StartInterval(0)
	}
	return finalize, true
}

// Rehydrate replays persisted history into the ring: up to the last 7 days in
// chronological order with the cursor on the most recent. The skip flag is
// armed so the next rollover does not re-append a record the log already
// holds. Returns the most recent day's date, or ok=false for empty history.
func (l *Ledger) Rehydrate(history []Day) (last Date, ok bool) {
	if len(history) == 0 {
		return Date{}, false
	}
	if len(history) > Days {
		history = history[len(history)-Days:]
	}

	for i := range l.days {
		l.days[i] = emptyDay()
	}
	for i, day := range history {
		day.Intervals = append([]Interval(nil), day.Intervals...)
		l.days[i] = day
	}
	l.index = len(history) - 1
	l.active = -1

	last = l.days[l.index].Date
	l.haveDate = true
	l.lastYear = last.Year
	l.lastYearDay = last.YearDay
	l.skipPersist = true
	return last, true
}
