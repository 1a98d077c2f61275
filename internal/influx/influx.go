// Package influx is an optional time-series sink for flow samples and
// finalized day records. When not configured every write is a no-op, so the
// control loop can call it unconditionally.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"

	"github.com/sweeney/water-meter/internal/ledger"
)

// Config identifies the InfluxDB bucket to write to. An empty URL disables
// the sink.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether the sink is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// Sink writes meter samples to InfluxDB behind a circuit breaker, so a dead
// database cannot stall the one-second control loop with repeated timeouts.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	breaker  *gobreaker.CircuitBreaker
	device   string
}

// NewSink connects to InfluxDB. Returns (nil, nil) when cfg is disabled;
// a nil *Sink is safe to use and drops all writes.
func NewSink(cfg Config, device string) (*Sink, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "influx",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	return &Sink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		breaker:  breaker,
		device:   device,
	}, nil
}

// WriteSample records one flow sample.
func (s *Sink) WriteSample(ctx context.Context, ts time.Time, flowLpm, dailyLiters, totalLiters float64, valveOpen bool) error {
	if s == nil {
		return nil
	}
	point := influxdb2.NewPoint("water_flow",
		map[string]string{"device": s.device},
		map[string]interface{}{
			"flow_lpm":   flowLpm,
			"daily_l":    dailyLiters,
			"total_l":    totalLiters,
			"valve_open": valveOpen,
		},
		ts)
	return s.write(ctx, func(ctx context.Context) error {
		return s.writeAPI.WritePoint(ctx, point)
	})
}

// WriteDay records a finalized day at midnight rollover.
func (s *Sink) WriteDay(ctx context.Context, ts time.Time, day ledger.Day) error {
	if s == nil {
		return nil
	}
	point := influxdb2.NewPoint("water_day",
		map[string]string{
			"device": s.device,
			"date": fmt.Sprintf("%04d-%02d-%02d",
				day.Date.Year, day.Date.Month, day.Date.Day),
		},
		map[string]interface{}{
			"total_sec": int64(day.TotalSeconds),
			"total_l":   day.TotalLiters,
			"intervals": int64(len(day.Intervals)),
		},
		ts)
	return s.write(ctx, func(ctx context.Context) error {
		return s.writeAPI.WritePoint(ctx, point)
	})
}

func (s *Sink) write(ctx context.Context, op func(context.Context) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return nil, op(ctx)
	})
	if err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the underlying client. Safe on a nil sink.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	s.client.Close()
}
