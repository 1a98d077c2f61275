package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sweeney/water-meter/internal/schedule"
)

// Prefs is the key-value fallback store consulted when no valid CSV config
// exists. On the original hardware this was the NVS preference store; here it
// is a small JSON file.
type Prefs interface {
	Load() (Config, error)
	Save(Config) error
}

// prefsDoc is the on-disk shape. Field names mirror the preference keys the
// device used.
type prefsDoc struct {
	FlowLpm  float64      `json:"flow_lpm"`
	MinIntL  float64      `json:"min_int_l"`
	ReportMs uint32       `json:"report_ms"`
	Windows  []windowDoc  `json:"windows"`
	PPL      float64      `json:"ppl"`
	TZ       string       `json:"tz"`
}

type windowDoc struct {
	StartHour int `json:"csh"`
	StartMin  int `json:"csm"`
	EndHour   int `json:"ceh"`
	EndMin    int `json:"cem"`
}

// FilePrefs stores preferences as JSON at a fixed path.
type FilePrefs struct {
	Path string
}

// NewFilePrefs creates a prefs store at dir/prefs.json.
func NewFilePrefs(dir string) *FilePrefs {
	return &FilePrefs{Path: filepath.Join(dir, "prefs.json")}
}

// Load reads and validates the stored preferences.
func (p *FilePrefs) Load() (Config, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Config{}, fmt.Errorf("read prefs: %w", err)
	}
	var doc prefsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("decode prefs: %w", err)
	}

	cfg := Config{
		FlowActiveLpm:     doc.FlowLpm,
		MinIntervalLiters: doc.MinIntL,
		ReportIntervalMs:  doc.ReportMs,
		PulsesPerLiter:    doc.PPL,
		Timezone:          doc.TZ,
	}
	for i, w := range doc.Windows {
		if i >= schedule.MaxWindows {
			break
		}
		cfg.Windows[i] = schedule.Window{
			StartHour: w.StartHour,
			StartMin:  w.StartMin,
			EndHour:   w.EndHour,
			EndMin:    w.EndMin,
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("stored prefs invalid: %w", err)
	}
	return cfg, nil
}

// Save writes the preferences, creating the directory if needed.
func (p *FilePrefs) Save(cfg Config) error {
	doc := prefsDoc{
		FlowLpm:  cfg.FlowActiveLpm,
		MinIntL:  cfg.MinIntervalLiters,
		ReportMs: cfg.ReportIntervalMs,
		PPL:      cfg.PulsesPerLiter,
		TZ:       cfg.Timezone,
	}
	for _, w := range cfg.Windows {
		doc.Windows = append(doc.Windows, windowDoc{
			StartHour: w.StartHour,
			StartMin:  w.StartMin,
			EndHour:   w.EndHour,
			EndMin:    w.EndMin,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	if err := os.WriteFile(p.Path, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
