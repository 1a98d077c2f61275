package store

import (
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/water-meter/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func makeDay(t *testing.T, y, m, d int, seconds uint32, liters float64, intervals ...ledger.Interval) ledger.Day {
	t.Helper()
	day := ledger.Day{
		Date:         ledger.DateOf(time.Date(y, time.Month(m), d, 12, 0, 0, 0, time.UTC)),
		TotalSeconds: seconds,
		TotalLiters:  liters,
	}
	for _, iv := range intervals {
		if !day.AddInterval(iv) {
			t.Fatal("interval capacity exceeded in fixture")
		}
	}
	return day
}

func TestAppendDayFileFormat(t *testing.T) {
	s := newTestStore(t)
	day := makeDay(t, 2026, 3, 10, 125, 7.5,
		ledger.Interval{StartSec: 3600, EndSec: 3725, Liters: 7.5},
		ledger.Interval{StartSec: 4000, EndSec: 4000, Liters: 0}, // omitted
	)
	if err := s.AppendDay(day); err != nil {
		t.Fatalf("AppendDay: %v", err)
	}

	usage, err := os.ReadFile(s.UsagePath())
	if err != nil {
		t.Fatalf("read usage: %v", err)
	}
	wantUsage := "date,wday,total_seconds,total_liters\n2026-03-10,2,125,7.500\n"
	if string(usage) != wantUsage {
		t.Errorf("usage log:\n got %q\nwant %q", usage, wantUsage)
	}

	intervals, err := os.ReadFile(s.IntervalsPath())
	if err != nil {
		t.Fatalf("read intervals: %v", err)
	}
	wantIntervals := "date,wday,start_sec,end_sec,liters\n2026-03-10,2,3600,3725,7.500\n"
	if string(intervals) != wantIntervals {
		t.Errorf("interval log:\n got %q\nwant %q", intervals, wantIntervals)
	}
}

func TestAppendDayHeaderOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	s.AppendDay(makeDay(t, 2026, 3, 10, 1, 0.1))
	s.AppendDay(makeDay(t, 2026, 3, 11, 2, 0.2))

	usage, _ := os.ReadFile(s.UsagePath())
	if n := strings.Count(string(usage), "date,wday"); n != 1 {
		t.Errorf("usage header written %d times, want 1", n)
	}
}

func TestAppendRejectsEmptySlot(t *testing.T) {
	s := newTestStore(t)
	var empty ledger.Day
	empty.Date.Year = -1
	if err := s.AppendDay(empty); err == nil {
		t.Error("expected error for empty slot")
	}
}

func TestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	days := []ledger.Day{
		makeDay(t, 2026, 3, 10, 125, 7.5,
			ledger.Interval{StartSec: 3600, EndSec: 3725, Liters: 7.5}),
		makeDay(t, 2026, 3, 11, 60, 3.25,
			ledger.Interval{StartSec: 100, EndSec: 130, Liters: 1.25},
			ledger.Interval{StartSec: 500, EndSec: 530, Liters: 2.0}),
	}
	for _, d := range days {
		if err := s.AppendDay(d); err != nil {
			t.Fatalf("AppendDay: %v", err)
		}
	}

	got, ok := s.LoadWeek()
	if !ok {
		t.Fatal("LoadWeek reported no history")
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d days, want 2", len(got))
	}
	for i, want := range days {
		if !got[i].Date.Equal(want.Date) {
			t.Errorf("day %d date = %+v, want %+v", i, got[i].Date, want.Date)
		}
		if got[i].TotalSeconds != want.TotalSeconds {
			t.Errorf("day %d seconds = %d, want %d", i, got[i].TotalSeconds, want.TotalSeconds)
		}
		if math.Abs(got[i].TotalLiters-want.TotalLiters) > 1e-3 {
			t.Errorf("day %d liters = %f, want %f", i, got[i].TotalLiters, want.TotalLiters)
		}
		if len(got[i].Intervals) != len(want.Intervals) {
			t.Fatalf("day %d intervals = %d, want %d", i, len(got[i].Intervals), len(want.Intervals))
		}
		for j, iv := range want.Intervals {
			g := got[i].Intervals[j]
			if g.StartSec != iv.StartSec || g.EndSec != iv.EndSec {
				t.Errorf("day %d interval %d span = [%d,%d], want [%d,%d]",
					i, j, g.StartSec, g.EndSec, iv.StartSec, iv.EndSec)
			}
		}
	}
}

func TestLoadWeekKeepsLastSeven(t *testing.T) {
	s := newTestStore(t)
	for d := 1; d <= 10; d++ {
		if err := s.AppendDay(makeDay(t, 2026, 3, d, uint32(d), float64(d))); err != nil {
			t.Fatalf("AppendDay: %v", err)
		}
	}

	days, ok := s.LoadWeek()
	if !ok {
		t.Fatal("LoadWeek failed")
	}
	if len(days) != ledger.Days {
		t.Fatalf("loaded %d days, want %d", len(days), ledger.Days)
	}
	if days[0].Date.Day != 4 || days[6].Date.Day != 10 {
		t.Errorf("window = days %d..%d, want 4..10", days[0].Date.Day, days[6].Date.Day)
	}
}

func TestLoadWeekSkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	raw := "date,wday,total_seconds,total_liters\n" +
		"garbage line\n" +
		"2026-03-10,2,bad,7.500\n" +
		"2026-03-10,2,125,7.500\n" +
		"2026-13-40,9,1,1.000\n"
	if err := os.WriteFile(s.UsagePath(), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	days, ok := s.LoadWeek()
	if !ok || len(days) != 1 {
		t.Fatalf("loaded %d days (ok=%v), want exactly the one valid row", len(days), ok)
	}
}

func TestLoadWeekMissingFile(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.LoadWeek(); ok {
		t.Error("missing usage log should report ok=false")
	}
}

func TestIntervalAttachmentRespectsCapacity(t *testing.T) {
	s := newTestStore(t)
	day := makeDay(t, 2026, 3, 10, 10, 1.0)
	if err := s.AppendDay(day); err != nil {
		t.Fatal(err)
	}

	// Write more interval rows than a day can hold.
	f, err := os.OpenFile(s.IntervalsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < ledger.MaxIntervals+10; i++ {
		if _, err := f.WriteString("2026-03-10,2,100,200,0.500\n"); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	days, ok := s.LoadWeek()
	if !ok {
		t.Fatal("LoadWeek failed")
	}
	if n := len(days[0].Intervals); n != ledger.MaxIntervals {
		t.Errorf("attached %d intervals, want capped at %d", n, ledger.MaxIntervals)
	}
}
