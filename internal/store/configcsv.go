package store

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sweeney/water-meter/internal/config"
	"github.com/sweeney/water-meter/internal/schedule"
)

// configHeader names every column of the current layout.
const configHeader = "flow_active_lpm,min_interval_l,report_interval_ms," +
	"close1_start_hour,close1_start_min,close1_end_hour,close1_end_min," +
	"close2_start_hour,close2_start_min,close2_end_hour,close2_end_min," +
	"close3_start_hour,close3_start_min,close3_end_hour,close3_end_min," +
	"pulses_per_liter,tz_info"

// Column counts for the two accepted layouts. The legacy layout carried a
// single blocked window; the current one carries all three. Files are not
// versioned, so the layout is sniffed by column count alone.
const (
	legacyConfigColumns  = 9
	currentConfigColumns = 3 + schedule.MaxWindows*4 + 2
)

// LoadConfig reads the config CSV. It accepts the first line that parses and
// validates; a file with no valid line (or no file) is an error and callers
// fall back to the prefs store.
func (s *Store) LoadConfig() (config.Config, error) {
	f, err := os.Open(s.ConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "flow_active_lpm") {
			continue
		}
		cfg, err := DecodeConfigLine(line)
		if err != nil {
			continue
		}
		return cfg, nil
	}
	return config.Config{}, fmt.Errorf("no valid config line in %s", s.ConfigPath())
}

// SaveConfig rewrites the config CSV in the current layout: header plus one
// data row.
func (s *Store) SaveConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	data := configHeader + "\n" + EncodeConfigLine(cfg) + "\n"
	if err := os.WriteFile(s.ConfigPath(), []byte(data), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EncodeConfigLine renders the single config row in the current layout.
func EncodeConfigLine(cfg config.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.3f,%.3f,%d", cfg.FlowActiveLpm, cfg.MinIntervalLiters, cfg.ReportIntervalMs)
	for _, w := range cfg.Windows {
		fmt.Fprintf(&b, ",%d,%d,%d,%d", w.StartHour, w.StartMin, w.EndHour, w.EndMin)
	}
	fmt.Fprintf(&b, ",%.2f,%s", cfg.PulsesPerLiter, cfg.Timezone)
	return b.String()
}

// DecodeConfigLine tokenizes one config row and accepts either the legacy
// 9-column layout (one blocked window) or the current layout (all windows).
// Any parse failure or range violation rejects the whole line.
func DecodeConfigLine(line string) (config.Config, error) {
	tokens := strings.Split(line, ",")
	if len(tokens) != legacyConfigColumns && len(tokens) != currentConfigColumns {
		return config.Config{}, fmt.Errorf("config line has %d columns, want %d or %d",
			len(tokens), legacyConfigColumns, currentConfigColumns)
	}
	legacy := len(tokens) == legacyConfigColumns

	flow, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return config.Config{}, fmt.Errorf("flow_active_lpm: %w", err)
	}
	minInterval, err := strconv.ParseFloat(tokens[1], 64)
	if err != nil {
		return config.Config{}, fmt.Errorf("min_interval_l: %w", err)
	}
	reportMs, err := strconv.ParseUint(tokens[2], 10, 32)
	if err != nil {
		return config.Config{}, fmt.Errorf("report_interval_ms: %w", err)
	}

	cfg := config.Config{
		FlowActiveLpm:     flow,
		MinIntervalLiters: minInterval,
		ReportIntervalMs:  uint32(reportMs),
	}

	windows := schedule.MaxWindows
	if legacy {
		windows = 1 // remaining windows stay zeroed (disabled)
	}
	for i := 0; i < windows; i++ {
		w, err := parseWindow(tokens[3+i*4 : 3+i*4+4])
		if err != nil {
			return config.Config{}, fmt.Errorf("window %d: %w", i+1, err)
		}
		cfg.Windows[i] = w
	}

	tail := 3 + windows*4
	ppl, err := strconv.ParseFloat(tokens[tail], 64)
	if err != nil {
		return config.Config{}, fmt.Errorf("pulses_per_liter: %w", err)
	}
	cfg.PulsesPerLiter = ppl
	cfg.Timezone = tokens[tail+1]

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func parseWindow(tokens []string) (schedule.Window, error) {
	vals := make([]int, 4)
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return schedule.Window{}, err
		}
		vals[i] = v
	}
	return schedule.Window{
		StartHour: vals[0],
		StartMin:  vals[1],
		EndHour:   vals[2],
		EndMin:    vals[3],
	}, nil
}
