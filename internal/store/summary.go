package store

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Summary period names.
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// Bucket capacity ceilings: roughly two years of weeks, five years of months.
const (
	maxWeekBuckets  = 104
	maxMonthBuckets = 60
)

// SummaryItem is one aggregated period bucket.
type SummaryItem struct {
	Label        string  `json:"label"`
	TotalSeconds uint32  `json:"total_sec"`
	TotalLiters  float64 `json:"total_l"`
}

// Summary is a period-grouped view over the whole usage log.
type Summary struct {
	Period string        `json:"period"`
	Items  []SummaryItem `json:"items"`
}

// summaryBuckets is the bounded FIFO the aggregator accumulates into: a new
// period key past capacity evicts the oldest bucket. This caps memory
// regardless of log size; the view is a recent trend, not an archive.
type summaryBuckets struct {
	entries []bucket
	limit   int
}

type bucket struct {
	year    int
	key     int
	seconds uint32
	liters  float64
}

func (b *summaryBuckets) add(year, key int, seconds uint32, liters float64) {
	if n := len(b.entries); n > 0 && b.entries[n-1].year == year && b.entries[n-1].key == key {
		b.entries[n-1].seconds += seconds
		b.entries[n-1].liters += liters
		return
	}
	entry := bucket{year: year, key: key, seconds: seconds, liters: liters}
	if len(b.entries) == b.limit {
		copy(b.entries, b.entries[1:])
		b.entries[b.limit-1] = entry
		return
	}
	b.entries = append(b.entries, entry)
}

// BuildSummary streams the usage log line by line into period buckets without
// loading the history into memory. period is "week" or "month"; limit bounds
// the number of buckets kept (clamped to the period's ceiling). A missing or
// empty log yields an empty summary, not an error.
func (s *Store) BuildSummary(period string, limit int) (Summary, error) {
	if period != PeriodWeek && period != PeriodMonth {
		return Summary{}, fmt.Errorf("unknown summary period %q", period)
	}

	maxEntries := maxMonthBuckets
	if period == PeriodWeek {
		maxEntries = maxWeekBuckets
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxEntries {
		limit = maxEntries
	}

	out := Summary{Period: period, Items: []SummaryItem{}}

	f, err := os.Open(s.UsagePath())
	if err != nil {
		return out, nil
	}
	defer f.Close()

	buckets := summaryBuckets{limit: limit}
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

		key := day.Date.Month
		if period == PeriodWeek {
			key = (day.Date.YearDay-1)/7 + 1
		}
		buckets.add(day.Date.Year, key, day.TotalSeconds, day.TotalLiters)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan usage log: %w", err)
	}

	for _, e := range buckets.entries {
		label := fmt.Sprintf("%04d-%02d", e.year, e.key)
		if period == PeriodWeek {
			label = fmt.Sprintf("%04d-W%02d", e.year, e.key)
		}
		out.Items = append(out.Items, SummaryItem{
			Label:        label,
			TotalSeconds: e.seconds,
			TotalLiters:  e.liters,
		})
	}
	return out, nil
}
