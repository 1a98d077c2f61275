// Package web provides the HTTP dashboard and REST API for the water-meter
// daemon.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/water-meter/internal/config"
	"github.com/sweeney/water-meter/internal/engine"
	"github.com/sweeney/water-meter/internal/report"
	"github.com/sweeney/water-meter/internal/schedule"
	"github.com/sweeney/water-meter/internal/status"
	"github.com/sweeney/water-meter/internal/store"
)

// Server serves the dashboard and API.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	engine     *engine.Engine
	store      *store.Store

	// OnEvent, if set, receives events produced by manual valve commands
	// so the owner can publish them.
	OnEvent func(engine.Event)

	// OnReset, if set, runs after a counter reset (e.g. to clear the
	// hardware pulse counter).
	OnReset func()
}

// New creates a Server. gatherer backs /metrics; pass nil to use the default
// registry.
func New(addr string, tracker *status.Tracker, eng *engine.Engine, st *store.Store, gatherer prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker, engine: eng, store: st}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.json", s.handleIndexJSON).Methods("GET")
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/report", s.handleReport).Methods("GET")
	r.HandleFunc("/api/report.json", s.handleReportJSON).Methods("GET")
	r.HandleFunc("/api/summary.json", s.handleSummary).Methods("GET")
	r.HandleFunc("/api/config", s.handleConfigGet).Methods("GET")
	r.HandleFunc("/api/config", s.handleConfigPost).Methods("POST")
	r.HandleFunc("/api/config.csv", s.handleCSV(st.ConfigPath)).Methods("GET")
	r.HandleFunc("/api/usage.csv", s.handleCSV(st.UsagePath)).Methods("GET")
	r.HandleFunc("/api/intervals.csv", s.handleCSV(st.IntervalsPath)).Methods("GET")
	r.HandleFunc("/api/valve", s.handleValve).Methods("POST")
	r.HandleFunc("/api/reset", s.handleReset).Methods("POST")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(os.Stdout, r),
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleIndexJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// apiStatus is the flat status document the device API has always served.
type apiStatus struct {
	TimeValid        bool    `json:"time_valid"`
	Date             string  `json:"date,omitempty"`
	Time             string  `json:"time,omitempty"`
	Valve            string  `json:"valve"`
	ValveState       string  `json:"valve_state"`
	FlowLpm          float64 `json:"flow_lpm"`
	TotalLiters      float64 `json:"total_liters"`
	DailyLiters      float64 `json:"daily_liters"`
	WeekSeconds      uint32  `json:"week_seconds"`
	WeekLiters       float64 `json:"week_liters"`
	FlowActiveLpm    float64 `json:"flow_active_lpm"`
	ReportIntervalMs uint32  `json:"report_interval_ms"`
	CloseStart       string  `json:"close_start"`
	CloseEnd         string  `json:"close_end"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	m := snap.Meter

	valve := "CLOSED"
	if m.ValveOpen {
		valve = "OPEN"
	}
	out := apiStatus{
		TimeValid:        m.TimeValid,
		Valve:            valve,
		ValveState:       string(m.ValveState),
		FlowLpm:          m.FlowLpm,
		TotalLiters:      m.TotalLiters,
		DailyLiters:      m.DailyLiters,
		WeekSeconds:      m.WeekSeconds,
		WeekLiters:       m.WeekLiters,
		FlowActiveLpm:    m.Config.FlowActiveLpm,
		ReportIntervalMs: m.Config.ReportIntervalMs,
		CloseStart:       formatHM(m.Config.Windows[0].StartHour, m.Config.Windows[0].StartMin),
		CloseEnd:         formatHM(m.Config.Windows[0].EndHour, m.Config.Windows[0].EndMin),
	}
	if m.TimeValid {
		out.Date = snap.MeterTime.Format("2006-01-02")
		out.Time = snap.MeterTime.Format("15:04:05")
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	report.WriteText(w, s.engine.Week(), snap.Meter.TimeValid)
}

func (s *Server) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	data, err := report.BuildJSON(s.engine.Week())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period := strings.ToLower(r.URL.Query().Get("period"))
	if period != store.PeriodWeek && period != store.PeriodMonth {
		period = store.PeriodWeek
	}
	limit := 12
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	summary, err := s.store.BuildSummary(period, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// apiConfig mirrors the device's config document. Window 1 keeps the legacy
// close_start/close_end names; all three windows are also listed explicitly.
type apiConfig struct {
	FlowActiveLpm     float64     `json:"flow_active_lpm"`
	MinIntervalLiters float64     `json:"min_interval_l"`
	ReportIntervalMs  uint32      `json:"report_interval_ms"`
	CloseStart        string      `json:"close_start"`
	CloseEnd          string      `json:"close_end"`
	Windows           []apiWindow `json:"windows"`
	PulsesPerLiter    float64     `json:"pulses_per_liter"`
	Timezone          string      `json:"tz_info"`
}

type apiWindow struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Disabled bool   `json:"disabled"`
}

func configToAPI(cfg config.Config) apiConfig {
	out := apiConfig{
		FlowActiveLpm:     cfg.FlowActiveLpm,
		MinIntervalLiters: cfg.MinIntervalLiters,
		ReportIntervalMs:  cfg.ReportIntervalMs,
		CloseStart:        formatHM(cfg.Windows[0].StartHour, cfg.Windows[0].StartMin),
		CloseEnd:          formatHM(cfg.Windows[0].EndHour, cfg.Windows[0].EndMin),
		PulsesPerLiter:    cfg.PulsesPerLiter,
		Timezone:          cfg.Timezone,
	}
	for _, win := range cfg.Windows {
		out.Windows = append(out.Windows, apiWindow{
			Start:    formatHM(win.StartHour, win.StartMin),
			End:      formatHM(win.EndHour, win.EndMin),
			Disabled: win.Disabled(),
		})
	}
	return out
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configToAPI(s.engine.Config()))
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]bool{"ok": false})
		return
	}

	cfg, err := applyConfigForm(s.engine.Config(), r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]bool{"ok": false})
		return
	}
	if err := s.engine.UpdateConfig(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// applyConfigForm overlays submitted parameters on the current config.
// Window 1 accepts either close_start=HH:MM or the split
// close_start_hour/close_start_min pair; windows 2 and 3 use
// close2_start/close2_end and close3_start/close3_end.
func applyConfigForm(cfg config.Config, r *http.Request) (config.Config, error) {
	touched := false

	if v := r.FormValue("flow_active_lpm"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("flow_active_lpm: %w", err)
		}
		cfg.FlowActiveLpm = f
		touched = true
	}
	if v := r.FormValue("min_interval_l"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("min_interval_l: %w", err)
		}
		cfg.MinIntervalLiters = f
		touched = true
	}
	if v := r.FormValue("report_interval_ms"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("report_interval_ms: %w", err)
		}
		cfg.ReportIntervalMs = uint32(n)
		touched = true
	}
	if v := r.FormValue("pulses_per_liter"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("pulses_per_liter: %w", err)
		}
		cfg.PulsesPerLiter = f
		touched = true
	}
	if v := r.FormValue("tz_info"); v != "" {
		cfg.Timezone = v
		touched = true
	}

	win, changed, err := windowFromForm(r, cfg.Windows[0], "close_start", "close_end",
		"close_start_hour", "close_start_min", "close_end_hour", "close_end_min")
	if err != nil {
		return cfg, err
	}
	cfg.Windows[0] = win
	touched = touched || changed

	for i, prefix := range []string{"close2", "close3"} {
		win, changed, err := windowFromForm(r, cfg.Windows[i+1],
			prefix+"_start", prefix+"_end", "", "", "", "")
		if err != nil {
			return cfg, err
		}
		cfg.Windows[i+1] = win
		touched = touched || changed
	}

	if !touched {
		return cfg, fmt.Errorf("no config parameters submitted")
	}
	return cfg, nil
}

func windowFromForm(r *http.Request, win schedule.Window, startKey, endKey,
	startHourKey, startMinKey, endHourKey, endMinKey string) (schedule.Window, bool, error) {

	changed := false
	if v := r.FormValue(startKey); v != "" {
		h, m, err := parseHM(v)
		if err != nil {
			return win, false, fmt.Errorf("%s: %w", startKey, err)
		}
		win.StartHour, win.StartMin = h, m
		changed = true
	} else if startHourKey != "" && r.FormValue(startHourKey) != "" {
		h, err1 := strconv.Atoi(r.FormValue(startHourKey))
		m, err2 := strconv.Atoi(r.FormValue(startMinKey))
		if err1 != nil || err2 != nil {
			return win, false, fmt.Errorf("%s: bad number", startHourKey)
		}
		win.StartHour, win.StartMin = h, m
		changed = true
	}

	if v := r.FormValue(endKey); v != "" {
		h, m, err := parseHM(v)
		if err != nil {
			return win, false, fmt.Errorf("%s: %w", endKey, err)
		}
		win.EndHour, win.EndMin = h, m
		changed = true
	} else if endHourKey != "" && r.FormValue(endHourKey) != "" {
		h, err1 := strconv.Atoi(r.FormValue(endHourKey))
		m, err2 := strconv.Atoi(r.FormValue(endMinKey))
		if err1 != nil || err2 != nil {
			return win, false, fmt.Errorf("%s: bad number", endHourKey)
		}
		win.EndHour, win.EndMin = h, m
		changed = true
	}
	return win, changed, nil
}

func (s *Server) handleCSV(path func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := path()
		if _, err := os.Stat(p); err != nil {
			http.Error(w, "CSV not found.", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		http.ServeFile(w, r, p)
	}
}

func (s *Server) handleValve(w http.ResponseWriter, r *http.Request) {
	var ev *engine.Event
	var valve string

	switch strings.ToLower(r.FormValue("action")) {
	case "open":
		ev = s.engine.ManualOpen()
		valve = "OPEN"
	case "close":
		ev = s.engine.ManualClose()
		valve = "CLOSED"
	default:
		writeJSON(w, http.StatusBadRequest, map[string]bool{"ok": false})
		return
	}

	if ev != nil && s.OnEvent != nil {
		s.OnEvent(*ev)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "valve": valve})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetCounters()
	if s.OnReset != nil {
		s.OnReset()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func parseHM(v string) (hour, minute int, err error) {
	colon := strings.IndexByte(v, ':')
	if colon <= 0 {
		return 0, 0, fmt.Errorf("bad time %q", v)
	}
	hour, err1 := strconv.Atoi(v[:colon])
	minute, err2 := strconv.Atoi(v[colon+1:])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad time %q", v)
	}
	return hour, minute, nil
}

func formatHM(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
