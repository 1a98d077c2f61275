// Package ledger contains the pure usage-accounting core: per-day interval
// tracking, the rolling 7-day ring of day records, and midnight rollover.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Wall-clock time is always injected via Date values.
package ledger

import "time"

const (
	// MaxIntervals bounds the per-day interval list. Once a day has this
	// many intervals, further opens are dropped and only totals accumulate.
	MaxIntervals = 48

	// Days is the size of the rolling ledger ring.
	Days = 7

	// EndOfDaySec is the second-of-day an interval is clamped to when a
	// day rolls over while flow is still active.
	EndOfDaySec = 86399
)

// Interval is one contiguous span of active flow within a single day.
// While open, EndSec tracks the most recent active tick.
type Interval struct {
	StartSec uint32
	EndSec   uint32
	Liters   float64
}

// Duration returns the interval length in seconds, zero if the record is
// malformed (end before start).
func (iv Interval) Duration() uint32 {
	if iv.EndSec < iv.StartSec {
		return 0
	}
	return iv.EndSec - iv.StartSec
}

// Date identifies one calendar day. Year < 0 marks an empty ledger slot.
type Date struct {
	Year    int
	Month   int
	Day     int
	Weekday int // 0 = Sunday
	YearDay int // 1-based day of year
}

// DateOf extracts the calendar identity from a wall-clock reading.
func DateOf(t time.Time) Date {
	return Date{
		Year:    t.Year(),
		Month:   int(t.Month()),
		Day:     t.Day(),
		Weekday: int(t.Weekday()),
		YearDay: t.YearDay(),
	}
}

// Equal reports whether two dates name the same calendar day.
func (d Date) Equal(o Date) bool {
	return d.Year == o.Year && d.Month == o.Month && d.Day == o.Day
}

// Day is one calendar day's accounting: cumulative totals plus a bounded
// chronological list of flow intervals.
type Day struct {
	Date         Date
	TotalSeconds uint32
	TotalLiters  float64
	Intervals    []Interval
}

// Empty reports whether the slot has never been assigned a real day.
func (d *Day) Empty() bool {
	return d.Date.Year < 0
}

// AddInterval appends an interval if capacity remains. It returns false once
// the day's interval list is full; the caller degrades to totals-only.
func (d *Day) AddInterval(iv Interval) bool {
	if len(d.Intervals) >= MaxIntervals {
		return false
	}
	d.Intervals = append(d.Intervals, iv)
	return true
}

func (d *Day) reset(date Date) {
	d.Date = date
	d.TotalSeconds = 0
	d.TotalLiters = 0
	d.Intervals = d.Intervals[:0]
}

func emptyDay() Day {
	return Day{Date: Date{Year: -1, Month: -1, Day: -1, Weekday: -1}}
}
