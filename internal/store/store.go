// Package store is the persistence codec for the usage ledger: append-only
// CSV logs for day totals and intervals, a single-row config CSV with
// backward-compatible decoding, and a bounded streaming summary aggregator.
//
// The file formats are fixed; they must stay byte-compatible with logs
// written by earlier firmware so history survives an upgrade.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/water-meter/internal/ledger"
)

// File names inside the data directory.
const (
	ConfigFile    = "config.csv"
	UsageFile     = "usage.csv"
	IntervalsFile = "intervals.csv"
)

// Log headers, written once when a file is created.
const (
	usageHeader     = "date,wday,total_seconds,total_liters"
	intervalsHeader = "date,wday,start_sec,end_sec,liters"
)

// Store reads and writes the persisted ledger state under one directory.
// Writes are synchronous; the single control loop is the only writer.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// ConfigPath returns the config CSV location (served raw by the HTTP API).
func (s *Store) ConfigPath() string { return filepath.Join(s.dir, ConfigFile) }

// UsagePath returns the day-totals log location.
func (s *Store) UsagePath() string { return filepath.Join(s.dir, UsageFile) }

// IntervalsPath returns the interval log location.
func (s *Store) IntervalsPath() string { return filepath.Join(s.dir, IntervalsFile) }

// AppendDay writes one finalized day: a totals row to the usage log and one
// row per interval with positive liters to the interval log. Empty slots are
// never written.
func (s *Store) AppendDay(day ledger.Day) error {
	if day.Empty() {
		return fmt.Errorf("refusing to append empty day slot")
	}

	if err := appendLines(s.UsagePath(), usageHeader, []string{usageRow(day)}); err != nil {
		return fmt.Errorf("append usage: %w", err)
	}

	var rows []string
	for _, iv := range day.Intervals {
		if iv.Liters <= 0 {
			continue
		}
		rows = append(rows, intervalRow(day.Date, iv))
	}
	if err := appendLines(s.IntervalsPath(), intervalsHeader, rows); err != nil {
		return fmt.Errorf("append intervals: %w", err)
	}
	return nil
}

func usageRow(day ledger.Day) string {
	return fmt.Sprintf("%04d-%02d-%02d,%d,%d,%.3f",
		day.Date.Year, day.Date.Month, day.Date.Day, day.Date.Weekday,
		day.TotalSeconds, day.TotalLiters)
}

func intervalRow(date ledger.Date, iv ledger.Interval) string {
	return fmt.Sprintf("%04d-%02d-%02d,%d,%d,%d,%.3f",
		date.Year, date.Month, date.Day, date.Weekday,
		iv.StartSec, iv.EndSec, iv.Liters)
}

// appendLines appends rows to path, writing the header first if the file is
// new or empty. The interval log gets its header even on a day with no rows.
func appendLines(path, header string, rows []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w := bufio.NewWriter(f)
	if info.Size() == 0 {
		fmt.Fprintln(w, header)
	}
	for _, row := range rows {
		fmt.Fprintln(w, row)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadWeek replays the usage log keeping the last 7 day records in
// chronological order, then attaches interval rows to their matching days up
// to per-day capacity. Malformed lines are skipped, never fatal. A missing
// log yields ok=false.
func (s *Store) LoadWeek() (days []ledger.Day, ok bool) {
	f, err := os.Open(s.UsagePath())
	if err != nil {
		return nil, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		day, err := parseUsageLine(line)
		if err != nil {
			continue
		}
		// Sliding window: push new, evict oldest beyond the ring size.
		if len(days) == ledger.Days {
			copy(days, days[1:])
			days[ledger.Days-1] = day
		} else {
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return nil, false
	}

	s.attachIntervals(days)
	return days, true
}

func (s *Store) attachIntervals(days []ledger.Day) {
	f, err := os.Open(s.IntervalsPath())
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		date, iv, err := parseIntervalLine(line)
		if err != nil {
			continue
		}
		for i := range days {
			if days[i].Date.Equal(date) {
				days[i].AddInterval(iv)
				break
			}
		}
	}
}

func parseUsageLine(line string) (ledger.Day, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 || fields[0] == "date" {
		return ledger.Day{}, fmt.Errorf("not a usage row")
	}
	date, err := parseDate(fields[0], fields[1])
	if err != nil {
		return ledger.Day{}, err
	}
	seconds, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return ledger.Day{}, fmt.Errorf("total_seconds: %w", err)
	}
	liters, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return ledger.Day{}, fmt.Errorf("total_liters: %w", err)
	}
	return ledger.Day{
		Date:         date,
		TotalSeconds: uint32(seconds),
		TotalLiters:  liters,
	}, nil
}

func parseIntervalLine(line string) (ledger.Date, ledger.Interval, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 || fields[0] == "date" {
		return ledger.Date{}, ledger.Interval{}, fmt.Errorf("not an interval row")
	}
	date, err := parseDate(fields[0], fields[1])
	if err != nil {
		return ledger.Date{}, ledger.Interval{}, err
	}
	start, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return ledger.Date{}, ledger.Interval{}, fmt.Errorf("start_sec: %w", err)
	}
	end, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return ledger.Date{}, ledger.Interval{}, fmt.Errorf("end_sec: %w", err)
	}
	liters, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return ledger.Date{}, ledger.Interval{}, fmt.Errorf("liters: %w", err)
	}
	return date, ledger.Interval{
		StartSec: uint32(start),
		EndSec:   uint32(end),
		Liters:   liters,
	}, nil
}

// parseDate decodes a "YYYY-MM-DD" field plus a weekday column.
func parseDate(dateField, wdayField string) (ledger.Date, error) {
	parts := strings.Split(dateField, "-")
	if len(parts) != 3 {
		return ledger.Date{}, fmt.Errorf("bad date %q", dateField)
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	wday, err4 := strconv.Atoi(wdayField)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return ledger.Date{}, fmt.Errorf("bad date %q,%q", dateField, wdayField)
	}
	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 || wday < 0 || wday > 6 {
		return ledger.Date{}, fmt.Errorf("date out of range %q", dateField)
	}
	return ledger.Date{
		Year:    year,
		Month:   month,
		Day:     day,
		Weekday: wday,
		YearDay: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).YearDay(),
	}, nil
}
