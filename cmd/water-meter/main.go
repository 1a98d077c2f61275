// Command water-meter runs the household water metering daemon: it counts
// flow-sensor pulses, maintains the rolling usage ledger, enforces the
// blocked-window valve schedule, and serves the dashboard and MQTT feeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/water-meter/internal/clock"
	"github.com/sweeney/water-meter/internal/config"
	"github.com/sweeney/water-meter/internal/engine"
	"github.com/sweeney/water-meter/internal/gpio"
	"github.com/sweeney/water-meter/internal/influx"
	"github.com/sweeney/water-meter/internal/metrics"
	"github.com/sweeney/water-meter/internal/mqtt"
	"github.com/sweeney/water-meter/internal/status"
	"github.com/sweeney/water-meter/internal/store"
	"github.com/sweeney/water-meter/internal/web"
)

func main() {
	tick := flag.Duration("tick", time.Second, "Accounting tick interval")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	dataDir := flag.String("data-dir", "/var/lib/water-meter", "Directory for CSV logs and preferences")
	pinPulse := flag.Int("pin-pulse", gpio.DefaultPinPulse, "BCM pin number for the flow-sensor pulse input")
	pinValve := flag.Int("pin-valve", gpio.DefaultPinValve, "BCM pin number for the valve relay output")
	httpAddr := flag.String("http", ":80", "HTTP dashboard address (empty to disable)")
	device := flag.String("device", "water-meter", "Device tag for time-series writes")
	influxURL := flag.String("influx-url", "", "InfluxDB URL (empty to disable)")
	influxToken := flag.String("influx-token", "", "InfluxDB API token")
	influxOrg := flag.String("influx-org", "", "InfluxDB organization")
	influxBucket := flag.String("influx-bucket", "", "InfluxDB bucket")

	flag.Parse()

	ic := influx.Config{
		URL:    *influxURL,
		Token:  *influxToken,
		Org:    *influxOrg,
		Bucket: *influxBucket,
	}
	if err := run(*tick, *broker, *dataDir, *pinPulse, *pinValve, *httpAddr, *device, ic); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(tick time.Duration, broker, dataDir string, pinPulse, pinValve int, httpAddr, device string, ic influx.Config) error {
	st, err := store.New(dataDir)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	prefs := config.NewFilePrefs(dataDir)
	cfg := loadConfig(st, prefs)

	loc, err := cfg.Location()
	if err != nil {
		log.Printf("timezone %q unusable, using UTC: %v", cfg.Timezone, err)
		loc = time.UTC
	}
	sysClock := clock.NewSystem(loc)

	// Initialize GPIO
	valveDriver, err := gpio.NewRealValveDriver(pinValve)
	if err != nil {
		return fmt.Errorf("init valve gpio: %w", err)
	}
	defer valveDriver.Close()

	pulseSource, err := gpio.NewRealPulseSource(pinPulse)
	if err != nil {
		return fmt.Errorf("init pulse gpio: %w", err)
	}
	defer pulseSource.Close()

	eng := engine.New(engine.Options{
		Config:   cfg,
		Clock:    sysClock,
		Actuator: valveDriver,
		Persist:  st,
		Prefs:    prefs,
	})
	eng.TimezoneChanged = sysClock.SetLocation

	if days, ok := st.LoadWeek(); ok {
		eng.Restore(days)
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	sink, err := influx.NewSink(ic, device)
	if err != nil {
		return fmt.Errorf("init influx: %w", err)
	}
	defer sink.Close()

	m := metrics.New(nil)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:   broker,
		HTTPAddr: httpAddr,
		DataDir:  dataDir,
		TickMs:   tick.Milliseconds(),
	})
	bootTime, _ := sysClock.Now()
	tracker.Update(eng.Snapshot(), bootTime)
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP dashboard server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, eng, st, nil)
		srv.OnEvent = func(ev engine.Event) {
			if err := publisher.Publish(ev); err != nil {
				log.Printf("publish error: %v", err)
			}
			m.RecordEvent(ev)
		}
		srv.OnReset = func() {
			// Discard pulses counted before the reset took effect.
			pulseSource.TakePulses()
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http dashboard listening on %s", httpAddr)
	}

	log.Printf("started: tick=%v broker=%s data=%s heartbeat=%v", tick, broker, dataDir, cfg.ReportInterval())

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		engine:     eng,
		pulses:     pulseSource,
		clk:        sysClock,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		metrics:    m,
		sink:       sink,
		heartbeat:  cfg.ReportInterval(),
	}
	return l.run(ticker.C, sigCh)
}

// loadConfig resolves the boot configuration: the CSV config first, the
// key-value prefs store second, shipped defaults last.
func loadConfig(st *store.Store, prefs config.Prefs) config.Config {
	if cfg, err := st.LoadConfig(); err == nil {
		return cfg
	} else {
		log.Printf("config csv unusable: %v", err)
	}
	if cfg, err := prefs.Load(); err == nil {
		log.Printf("using stored preferences")
		return cfg
	}
	log.Printf("using default configuration")
	return config.Default()
}

// loop is the control loop with all collaborators injected, so tests can
// drive it with fakes and a scripted clock.
type loop struct {
	engine     *engine.Engine
	pulses     gpio.PulseSource
	clk        clock.Clock
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	sink       *influx.Sink
	heartbeat  time.Duration
}

// run processes one accounting tick per tick-channel message until a signal
// arrives, then publishes a retained SHUTDOWN event and returns.
func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	var lastBeat time.Time

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: time.Now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if l.tracker != nil {
				if l.mqttStatus != nil {
					l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
				}
				snap := l.tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t, valid := l.clk.Now()
			pulses := l.pulses.TakePulses()

			events := l.engine.Tick(t, valid, pulses)
			for _, ev := range events {
				log.Printf("event: %s (flow=%.2f lpm daily=%.3f l)", ev.Type, ev.FlowLpm, ev.DailyLiters)
				if err := l.publisher.Publish(ev); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
				l.metrics.RecordEvent(ev)
				if ev.Type == engine.EventDayFinalized && ev.Day != nil {
					if err := l.sink.WriteDay(context.Background(), t, *ev.Day); err != nil {
						log.Printf("influx day write error: %v", err)
					}
				}
			}

			snap := l.engine.Snapshot()
			l.metrics.Observe(snap)
			l.tracker.Update(snap, t)
			if l.mqttStatus != nil {
				l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
			}

			if err := l.sink.WriteSample(context.Background(), t,
				snap.FlowLpm, snap.DailyLiters, snap.TotalLiters, snap.ValveOpen); err != nil {
				log.Printf("influx sample write error: %v", err)
			}

			// Heartbeat on the configured reporting cadence.
			if l.heartbeat <= 0 {
				continue
			}
			if lastBeat.IsZero() {
				lastBeat = t
				continue
			}
			if t.Sub(lastBeat) < l.heartbeat {
				continue
			}
			lastBeat = t

			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}
