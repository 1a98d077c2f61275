// Package schedule evaluates time-of-day blocked windows and drives the valve
// state machine, including the manual-override hold semantics.
package schedule

// MaxWindows is the number of configurable blocked windows.
const MaxWindows = 3

// Window is one time-of-day range during which automatic control keeps the
// valve closed. A window whose start equals its end is disabled. Windows may
// wrap past midnight (start after end in minute-of-day terms).
type Window struct {
	StartHour int
	StartMin  int
	EndHour   int
	EndMin    int
}

// Disabled reports whether the window matches nothing.
func (w Window) Disabled() bool {
	return w.startMinute() == w.endMinute()
}

// Contains reports whether the given minute-of-day falls inside the window.
func (w Window) Contains(minOfDay int) bool {
	start := w.startMinute()
	end := w.endMinute()
	if start == end {
		return false
	}
	if start < end {
		return minOfDay >= start && minOfDay < end
	}
	// Wraps midnight.
	return minOfDay >= start || minOfDay < end
}

func (w Window) startMinute() int { return w.StartHour*60 + w.StartMin }
func (w Window) endMinute() int   { return w.EndHour*60 + w.EndMin }

// Schedule is the set of configured blocked windows.
type Schedule struct {
	Windows [MaxWindows]Window
}

// Blocked reports whether the given wall-clock time falls inside any window.
func (s Schedule) Blocked(hour, minute int) bool {
	minOfDay := hour*60 + minute
	for _, w := range s.Windows {
		if w.Contains(minOfDay) {
			return true
		}
	}
	return false
}
