// Package report renders the rolling week's usage as the plain-text table
// and the JSON document served by the HTTP API.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/sweeney/water-meter/internal/ledger"
)

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

const rule = "--------------------------------------------------"

// WeekTotals sums seconds and liters across the given day records.
func WeekTotals(days []ledger.Day) (seconds uint32, liters float64) {
	for i := range days {
		seconds += days[i].TotalSeconds
		liters += days[i].TotalLiters
	}
	return seconds, liters
}

// WriteText writes the weekly usage table. days must be in chronological
// order, ending with the current day.
func WriteText(w io.Writer, days []ledger.Day, timeValid bool) {
	if !timeValid {
		fmt.Fprintln(w, "Time not synced. Report unavailable.")
		return
	}

	weekSec, weekLiters := WeekTotals(days)

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "WEEK TOTAL  %s | %7.3f L\n", formatDuration(weekSec), weekLiters)
	fmt.Fprintln(w, rule)

	for i := range days {
		d := &days[i]
		fmt.Fprintf(w, "[%s] %04d-%02d-%02d  |  Total %s | %7.3f L\n",
			dayName(d.Date.Weekday), d.Date.Year, d.Date.Month, d.Date.Day,
			formatDuration(d.TotalSeconds), d.TotalLiters)

		fmt.Fprintln(w, "  FROM   TO     DUR       L")
		for _, iv := range d.Intervals {
			fmt.Fprintf(w, "  %s  %s  %s  %7.3f\n",
				formatTimeHM(iv.StartSec), formatTimeHM(iv.EndSec),
				formatDuration(iv.Duration()), iv.Liters)
		}
		fmt.Fprintln(w, rule)
	}
}

// IntervalJSON is one usage interval in the JSON report.
type IntervalJSON struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Dur    string  `json:"dur"`
	Liters float64 `json:"liters"`
}

// DayJSON is one day in the JSON report.
type DayJSON struct {
	Wday         string         `json:"wday"`
	Date         string         `json:"date"`
	TotalSeconds uint32         `json:"total_sec"`
	TotalLiters  float64        `json:"total_l"`
	Intervals    []IntervalJSON `json:"intervals"`
}

// Report is the JSON report document.
type Report struct {
	WeekTotalSec uint32    `json:"week_total_sec"`
	WeekTotalL   float64   `json:"week_total_l"`
	Days         []DayJSON `json:"days"`
}

// Build assembles the JSON report structure from chronological day records.
func Build(days []ledger.Day) Report {
	weekSec, weekLiters := WeekTotals(days)
	r := Report{
		WeekTotalSec: weekSec,
		WeekTotalL:   round3(weekLiters),
		Days:         make([]DayJSON, 0, len(days)),
	}
	for i := range days {
		d := &days[i]
		dj := DayJSON{
			Wday:         dayName(d.Date.Weekday),
			Date:         fmt.Sprintf("%04d-%02d-%02d", d.Date.Year, d.Date.Month, d.Date.Day),
			TotalSeconds: d.TotalSeconds,
			TotalLiters:  round3(d.TotalLiters),
			Intervals:    make([]IntervalJSON, 0, len(d.Intervals)),
		}
		for _, iv := range d.Intervals {
			dj.Intervals = append(dj.Intervals, IntervalJSON{
				From:   formatTimeHM(iv.StartSec),
				To:     formatTimeHM(iv.EndSec),
				Dur:    formatDuration(iv.Duration()),
				Liters: round3(iv.Liters),
			})
		}
		r.Days = append(r.Days, dj)
	}
	return r
}

// BuildJSON renders the JSON report bytes.
func BuildJSON(days []ledger.Day) ([]byte, error) {
	data, err := json.Marshal(Build(days))
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

func dayName(wday int) string {
	if wday < 0 || wday > 6 {
		return "???"
	}
	return dayNames[wday]
}

func formatTimeHM(secOfDay uint32) string {
	return fmt.Sprintf("%02d:%02d", secOfDay/3600, (secOfDay%3600)/60)
}

func formatDuration(seconds uint32) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
