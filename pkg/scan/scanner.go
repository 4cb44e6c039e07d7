package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
)

// terseFieldsArg is the nmcli field list requested in terse mode. The
// parser depends on this exact order.
const terseFieldsArg = "IN-USE,SSID,BSSID,MODE,CHAN,FREQ,RATE,SIGNAL,SECURITY,WPA-FLAGS,RSN-FLAGS,BANDWIDTH"

// Config holds scanner configuration.
type Config struct {
	// Interface is the wireless interface for the secondary source.
	// Empty means auto-detect the first managed interface.
	Interface string `json:"interface"`
	// Interval is the sleep between polling cycles.
	Interval time.Duration `json:"interval"`
	// RescanEvery triggers an active double rescan every Nth cycle.
	// Active rescans faster than the driver's own minimum interval are
	// silently coalesced by the driver, so there is no point going lower.
	RescanEvery int `json:"rescan_every"`
	// LingerWindow keeps vanished APs visible for this long. Zero
	// disables lingering.
	LingerWindow time.Duration `json:"linger_window"`
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:     4 * time.Second,
		RescanEvery:  5,
		LingerWindow: 30 * time.Second,
	}
}

// Result is one polling cycle's outcome. Err is set only for the explicit
// failure classes (primary tool missing, invocation timeout); parse-level
// problems are absorbed upstream. APs is never mutated after emission.
type Result struct {
	Cycle    int
	APs      []*AccessPoint
	Err      error
	Rescan   bool
	Duration time.Duration
}

// Scanner is the polling worker. It is the sole writer of all stability
// state, so none of the caches need locking.
type Scanner struct {
	config   *Config
	logger   *logx.Logger
	runner   CommandRunner
	resolver VendorResolver

	terse  *TerseParser
	merger *Merger

	sticky   *StickyCache
	enrich   *EnrichmentCache
	counters *CounterDeltas
	linger   *LingerCache

	results chan Result
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	iface string
	cycle int
}

// NewScanner creates a scanner. A nil config uses defaults; a nil resolver
// disables vendor lookups.
func NewScanner(config *Config, logger *logx.Logger, runner CommandRunner, resolver VendorResolver) *Scanner {
	if config == nil {
		config = DefaultConfig()
	}
	if resolver == nil {
		resolver = NopVendorResolver{}
	}
	return &Scanner{
		config:   config,
		logger:   logger,
		runner:   runner,
		resolver: resolver,
		terse:    NewTerseParser(resolver),
		merger:   NewMerger(resolver),
		sticky:   NewStickyCache(),
		enrich:   NewEnrichmentCache(),
		counters: NewCounterDeltas(),
		linger:   NewLingerCache(config.LingerWindow),
		results:  make(chan Result, 1),
	}
}

// Results returns the single-slot handoff channel. Only the latest cycle is
// retained; a slow consumer sees the freshest list, not a backlog.
func (s *Scanner) Results() <-chan Result { return s.results }

// Start launches the polling worker.
func (s *Scanner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	iface := s.config.Interface
	if iface == "" {
		detected, err := DetectManagedInterface(ctx, s.runner)
		if err != nil {
			s.logger.Warn("Wireless interface auto-detection failed, secondary source disabled", "error", err)
		} else {
			iface = detected
			s.logger.Info("Detected wireless interface", "interface", iface)
		}
	}
	s.iface = iface

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop signals the worker and waits for the in-flight cycle to finish. Hung
// subprocesses are killed by their own per-call timeout.
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()

	s.logger.Info("Scan worker started",
		"interval", s.config.Interval.String(),
		"rescan_every", s.config.RescanEvery,
		"linger_window", s.config.LingerWindow.String())

	for {
		rescan := s.rescanDue()
		start := time.Now()
		aps, err := s.runCycle(ctx)
		elapsed := time.Since(start)
		if err != nil {
			if errors.Is(err, ErrToolMissing) {
				s.logger.Error("Primary scan tool not installed, scan worker exiting", "error", err)
				s.publish(Result{Cycle: s.cycle, Err: err, Rescan: rescan, Duration: elapsed})
				return
			}
			if ctx.Err() != nil {
				s.logger.Info("Scan worker stopped")
				return
			}
			s.logger.Warn("Scan cycle failed", "cycle", s.cycle, "error", err)
			s.publish(Result{Cycle: s.cycle, Err: err, Rescan: rescan, Duration: elapsed})
		} else {
			s.publish(Result{Cycle: s.cycle, APs: aps, Rescan: rescan, Duration: elapsed})
		}
		s.cycle++

		select {
		case <-ctx.Done():
			s.logger.Info("Scan worker stopped")
			return
		case <-time.After(s.config.Interval):
		}
	}
}

// rescanDue reports whether this cycle runs an active rescan. Cycle 2 gets
// an extra one so a fresh session does not wait a whole period for its
// first complete picture after the radio settles.
func (s *Scanner) rescanDue() bool {
	every := s.config.RescanEvery
	if every <= 0 {
		every = 5
	}
	return s.cycle%every == 0 || s.cycle == 2
}

func (s *Scanner) runCycle(ctx context.Context) ([]*AccessPoint, error) {
	output, err := s.readPrimary(ctx)
	if err != nil {
		return nil, err
	}

	aps := s.terse.Parse(output)

	dump := s.readScanDump(ctx)
	link := s.readLink(ctx)
	s.merger.Merge(aps, dump, link)

	var inUse *AccessPoint
	for _, ap := range aps {
		s.sticky.Observe(ap)
		s.enrich.Observe(ap)
		s.counters.Observe(ap)
		if ap.InUse {
			inUse = ap
		}
	}
	if inUse != nil {
		s.enrich.Refresh(inUse)
	}

	aps = s.linger.Merge(aps)

	s.logger.Debug("Scan cycle complete",
		"cycle", s.cycle, "access_points", len(aps), "covered", len(dump))
	return aps, nil
}

// readPrimary runs the nmcli list. Rescan cycles invoke it twice back to
// back: hidden SSIDs only answer active probes, and the probe responses
// land between the first trigger and the second read.
func (s *Scanner) readPrimary(ctx context.Context) (string, error) {
	if s.rescanDue() {
		if _, err := s.listWifi(ctx, true); err != nil {
			return "", fmt.Errorf("active rescan: %w", err)
		}
		output, err := s.listWifi(ctx, true)
		if err != nil {
			return "", fmt.Errorf("active rescan: %w", err)
		}
		return output, nil
	}
	output, err := s.listWifi(ctx, false)
	if err != nil {
		return "", fmt.Errorf("cached read: %w", err)
	}
	return output, nil
}

func (s *Scanner) listWifi(ctx context.Context, rescan bool) (string, error) {
	mode, timeout := "no", TimeoutCached
	if rescan {
		mode, timeout = "yes", TimeoutRescan
	}
	return s.runner.Run(ctx, timeout, "nmcli",
		"-t", "-f", terseFieldsArg, "device", "wifi", "list", "--rescan", mode)
}

// readScanDump fetches the secondary source. Any failure degrades to an
// empty map; the persistence cache bridges the gap.
func (s *Scanner) readScanDump(ctx context.Context) map[string]*Enrichment {
	if s.iface == "" {
		return map[string]*Enrichment{}
	}
	output, err := s.runner.Run(ctx, TimeoutScanDump, "iw", "dev", s.iface, "scan", "dump")
	if err != nil {
		s.logger.Debug("Scan dump unavailable", "error", err)
		return map[string]*Enrichment{}
	}
	return ParseScanDump(output)
}

// readLink collects association telemetry for the connected AP, if any:
// link summary, then station counters and channel survey for the same
// BSSID/frequency.
func (s *Scanner) readLink(ctx context.Context) *LinkInfo {
	if s.iface == "" {
		return nil
	}
	output, err := s.runner.Run(ctx, TimeoutLink, "iw", "dev", s.iface, "link")
	if err != nil {
		s.logger.Debug("Link status unavailable", "error", err)
		return nil
	}
	link := ParseLink(output, s.iface)
	if link == nil {
		return nil
	}

	if out, err := s.runner.Run(ctx, TimeoutStation, "iw", "dev", s.iface, "station", "dump"); err == nil {
		ParseStationDump(out, link.BSSID, &link.Stats)
	}
	if link.Stats.FreqMHz != nil {
		if out, err := s.runner.Run(ctx, TimeoutSurvey, "iw", "dev", s.iface, "survey", "dump"); err == nil {
			ParseSurveyDump(out, *link.Stats.FreqMHz, &link.Stats)
		}
	}
	return link
}

// publish hands the result off latest-wins: at most one result is ever
// pending, and it is always the newest.
func (s *Scanner) publish(res Result) {
	for {
		select {
		case s.results <- res:
			return
		default:
			select {
			case <-s.results:
			default:
			}
		}
	}
}
