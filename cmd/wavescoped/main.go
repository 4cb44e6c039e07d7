package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
	"github.com/markus-lassfolk/wavescope/pkg/metrics"
	"github.com/markus-lassfolk/wavescope/pkg/mqtt"
	"github.com/markus-lassfolk/wavescope/pkg/ouidb"
	"github.com/markus-lassfolk/wavescope/pkg/pidfile"
	"github.com/markus-lassfolk/wavescope/pkg/predictive"
	"github.com/markus-lassfolk/wavescope/pkg/scan"
	"github.com/markus-lassfolk/wavescope/pkg/store"
	"github.com/markus-lassfolk/wavescope/pkg/telem"
)

var (
	configPath = flag.String("config", "/etc/wavescope/config.json", "Path to configuration file")
	pidPath    = flag.String("pid-file", "/tmp/wavescoped.pid", "Path to PID file")
	logLevel   = flag.String("log-level", "", "Override log level (debug|info|warn|error|trace)")
	version    = flag.Bool("version", false, "Show version information")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (equivalent to trace level)")
	force      = flag.Bool("force", false, "Force start by removing stale PID file")
	iface      = flag.String("interface", "", "Wireless interface override (default: auto-detect)")
)

const (
	AppName    = "wavescoped"
	AppVersion = "1.0.0"
)

// Config is the daemon configuration file layout.
type Config struct {
	LogLevel string `json:"log_level"`

	Scan  *scan.Config  `json:"scan"`
	OUI   *ouidb.Config `json:"oui"`
	Store *store.Config `json:"store"`
	MQTT  *mqtt.Config  `json:"mqtt"`

	// TelemRetentionSeconds bounds the in-RAM signal history.
	TelemRetentionSeconds int `json:"telem_retention_seconds"`
	// MetricsListen exposes Prometheus metrics when non-empty,
	// e.g. ":9270".
	MetricsListen string `json:"metrics_listen"`
}

// DefaultConfigValues returns the daemon defaults.
func DefaultConfigValues() *Config {
	return &Config{
		LogLevel:              "info",
		Scan:                  scan.DefaultConfig(),
		OUI:                   ouidb.DefaultConfig(),
		Store:                 store.DefaultConfig(),
		MQTT:                  mqtt.DefaultConfig(),
		TelemRetentionSeconds: 120,
	}
}

// LoadConfig reads the JSON configuration file. A missing file yields
// defaults; a malformed one is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfigValues()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Scan == nil {
		cfg.Scan = scan.DefaultConfig()
	}
	if cfg.OUI == nil {
		cfg.OUI = ouidb.DefaultConfig()
	}
	if cfg.Store == nil {
		cfg.Store = store.DefaultConfig()
	}
	if cfg.MQTT == nil {
		cfg.MQTT = mqtt.DefaultConfig()
	}
	return cfg, nil
}

// HeartbeatData is the health file written to /tmp/wavescoped.health.
type HeartbeatData struct {
	Timestamp    string  `json:"ts"`
	UptimeS      int64   `json:"uptime_s"`
	Version      string  `json:"version"`
	Status       string  `json:"status"`
	LastCycleTS  string  `json:"last_cycle_ts"`
	AccessPoints int     `json:"access_points"`
	MemMB        float64 `json:"mem_mb"`
	Goroutines   int     `json:"goroutines"`
}

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	effectiveLogLevel := cfg.LogLevel
	if *logLevel != "" {
		effectiveLogLevel = *logLevel
	}
	if *verbose {
		effectiveLogLevel = "trace"
	}
	if *iface != "" {
		cfg.Scan.Interface = *iface
	}

	logger := logx.NewLogger(effectiveLogLevel, AppName)

	pidFile := pidfile.New(*pidPath)
	running, existingPID, err := pidFile.CheckRunning()
	if err != nil {
		logger.Error("Failed to check for running instance", "error", err)
		os.Exit(1)
	}
	if running {
		if *force {
			logger.Warn("Another instance is running, but force flag specified", "existing_pid", existingPID)
		} else {
			logger.Error("Another instance is already running", "existing_pid", existingPID, "pid_file", *pidPath)
			fmt.Fprintf(os.Stderr, "Error: %s is already running with PID %d\n", AppName, existingPID)
			os.Exit(1)
		}
	}
	if err := pidFile.Create(); err != nil {
		logger.Error("Failed to create PID file", "error", err, "path", *pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error("Failed to remove PID file", "error", err)
		}
	}()

	logger.Info("Starting wavescope daemon", "version", AppVersion, "pid", os.Getpid(), "pid_file", *pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver, err := ouidb.NewResolver(cfg.OUI, logger.WithComponent("ouidb"))
	if err != nil {
		logger.Error("Failed to initialize vendor resolver", "error", err)
		os.Exit(1)
	}
	defer resolver.Close()

	history, err := telem.NewStore(time.Duration(cfg.TelemRetentionSeconds)*time.Second, 256)
	if err != nil {
		logger.Error("Failed to initialize telemetry store", "error", err)
		os.Exit(1)
	}
	analyzer := predictive.NewAnalyzer(history, logger.WithComponent("predictive"))

	observations, err := store.NewObservationStore(cfg.Store, logger.WithComponent("store"))
	if err != nil {
		logger.Error("Failed to initialize observation store", "error", err)
		os.Exit(1)
	}
	defer observations.Close()

	mqttClient := mqtt.NewClient(cfg.MQTT, logger.WithComponent("mqtt"))
	if err := mqttClient.Connect(); err != nil {
		logger.Warn("MQTT connection failed, continuing without publishing", "error", err)
	}
	defer mqttClient.Disconnect()

	metrics.Init()
	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen, logger)
	}

	scanner := scan.NewScanner(cfg.Scan, logger.WithComponent("scan"), scan.NewExecRunner(), resolver)
	if err := scanner.Start(ctx); err != nil {
		logger.Error("Failed to start scanner", "error", err)
		os.Exit(1)
	}

	startTime := time.Now()
	status := &daemonStatus{}
	perf := logx.NewPerformanceLogger(logger.WithComponent("perf"))
	go consumeCycles(ctx, scanner, history, observations, mqttClient, analyzer, perf, status, logger)

	heartbeatTicker := time.NewTicker(10 * time.Second)
	defer heartbeatTicker.Stop()
	go writeHeartbeat(ctx, heartbeatTicker, startTime, status, mqttClient, logger)

	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				if _, err := observations.Cleanup(); err != nil {
					logger.Warn("Observation cleanup failed", "error", err)
				}
				perf.LogMetrics()
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())

	cancel()
	scanner.Stop()
	logger.Info("Graceful shutdown completed")
}

// daemonStatus is shared between the consumer and the heartbeat writer, so
// every access goes through the mutex.
type daemonStatus struct {
	mu           sync.Mutex
	lastCycle    time.Time
	accessPoints int
	degraded     bool
}

func (s *daemonStatus) markDegraded() {
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
}

func (s *daemonStatus) markCycle(accessPoints int) {
	s.mu.Lock()
	s.degraded = false
	s.lastCycle = time.Now()
	s.accessPoints = accessPoints
	s.mu.Unlock()
}

func (s *daemonStatus) snapshot() (lastCycle time.Time, accessPoints int, degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycle, s.accessPoints, s.degraded
}

// consumeCycles drains the scanner's handoff channel and fans each cycle
// out to history, persistence, metrics and MQTT.
func consumeCycles(ctx context.Context, scanner *scan.Scanner, history *telem.Store,
	observations *store.ObservationStore, mqttClient *mqtt.Client,
	analyzer *predictive.Analyzer, perf *logx.PerformanceLogger,
	status *daemonStatus, logger *logx.Logger,
) {
	lastTrend := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-scanner.Results():
			path := "cached"
			if res.Rescan {
				path = "rescan"
			}
			metrics.ObserveCycle(path, res.Err, res.Duration)
			if res.Err != nil {
				status.markDegraded()
				metrics.IncError(errorClass(res.Err))
				continue
			}
			status.markCycle(len(res.APs))

			history.Record(res.APs)
			metrics.UpdateFromCycle(res.APs)

			err := perf.Track("persist_cycle", func() error {
				return observations.StoreCycle(res.APs)
			})
			if err != nil {
				logger.Warn("Failed to persist cycle", "error", err)
			}
			err = perf.Track("publish_cycle", func() error {
				return mqttClient.PublishCycle(res.Cycle, res.APs)
			})
			if err != nil {
				logger.Warn("Failed to publish cycle", "error", err)
			}

			if time.Since(lastTrend) > time.Minute {
				lastTrend = time.Now()
				for bssid, trend := range analyzer.AnalyzeAll(ctx) {
					if trend.TrendDirection == predictive.TrendDegrading {
						logger.Info("Access point signal degrading",
							"bssid", bssid,
							"slope_dbm_per_min", trend.SlopeDBmPerMin,
							"predicted_dbm", trend.PredictedDBm)
					}
				}
			}
		}
	}
}

func errorClass(err error) string {
	if errors.Is(err, scan.ErrToolMissing) {
		return "tool_missing"
	}
	return "timeout"
}

func serveMetrics(addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics listener failed", "error", err)
	}
}

// writeHeartbeat writes health data to /tmp/wavescoped.health every tick and
// mirrors it to the MQTT status topic.
func writeHeartbeat(ctx context.Context, ticker *time.Ticker, startTime time.Time,
	status *daemonStatus, mqttClient *mqtt.Client, logger *logx.Logger,
) {
	const heartbeatFile = "/tmp/wavescoped.health"

	for {
		select {
		case <-ctx.Done():
			logger.Info("Heartbeat writer stopped")
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)

			lastCycle, accessPoints, degraded := status.snapshot()
			state := "ok"
			if degraded {
				state = "degraded"
			}
			heartbeat := HeartbeatData{
				Timestamp:    time.Now().UTC().Format(time.RFC3339),
				UptimeS:      int64(time.Since(startTime).Seconds()),
				Version:      AppVersion,
				Status:       state,
				LastCycleTS:  lastCycle.UTC().Format(time.RFC3339),
				AccessPoints: accessPoints,
				MemMB:        float64(memStats.Alloc) / 1024 / 1024,
				Goroutines:   runtime.NumGoroutine(),
			}

			data, err := json.Marshal(heartbeat)
			if err != nil {
				logger.Error("Failed to marshal heartbeat data", "error", err)
				continue
			}

			tempFile, err := os.CreateTemp("/tmp", "wavescoped-heartbeat-*.tmp")
			if err != nil {
				continue
			}
			if _, err := tempFile.Write(data); err != nil {
				tempFile.Close()
				os.Remove(tempFile.Name())
				logger.Error("Failed to write heartbeat file", "error", err, "file", tempFile.Name())
				continue
			}
			tempFile.Close()
			if err := os.Rename(tempFile.Name(), heartbeatFile); err != nil {
				os.Remove(tempFile.Name())
				logger.Error("Failed to rename heartbeat file", "error", err)
			}

			if err := mqttClient.PublishStatus(map[string]interface{}{
				"ts":            heartbeat.Timestamp,
				"status":        heartbeat.Status,
				"uptime_s":      heartbeat.UptimeS,
				"access_points": heartbeat.AccessPoints,
			}); err != nil {
				logger.Debug("Failed to publish status", "error", err)
			}
		}
	}
}
