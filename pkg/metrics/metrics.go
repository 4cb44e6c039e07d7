// Package metrics exposes Prometheus metrics for the scan pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/markus-lassfolk/wavescope/pkg/scan"
)

const (
	metricPrefix = "wavescope_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	scanCycles  *prometheus.CounterVec
	scanLatency *prometheus.HistogramVec
	scanErrors  *prometheus.CounterVec

	accessPoints *prometheus.GaugeVec
	lingeringAPs prometheus.Gauge
	coveredAPs   prometheus.Gauge

	connectedSignalDBm prometheus.Gauge
	connectedChanUtil  prometheus.Gauge
)

// Init registers the pipeline metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		scanCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scan_cycles_total",
				Help: "Total polling cycles by read path and result",
			},
			[]string{"path", "result"},
		)
		scanLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "scan_cycle_latency_seconds",
				Help:    "Polling cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		)
		scanErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scan_errors_total",
				Help: "Total cycle failures by class",
			},
			[]string{"class"},
		)

		accessPoints = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "access_points",
				Help: "Access points in the latest emitted cycle by band",
			},
			[]string{"band"},
		)
		lingeringAPs = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "access_points_lingering",
				Help: "Access points carried by the linger grace period",
			},
		)
		coveredAPs = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "access_points_enriched",
				Help: "Access points with secondary-source enrichment this cycle",
			},
		)

		connectedSignalDBm = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "connected_signal_dbm",
				Help: "Signal strength of the associated access point in dBm",
			},
		)
		connectedChanUtil = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "connected_channel_utilization_pct",
				Help: "BSS Load channel utilization of the associated access point",
			},
		)

		prometheus.MustRegister(
			scanCycles,
			scanLatency,
			scanErrors,
			accessPoints,
			lingeringAPs,
			coveredAPs,
			connectedSignalDBm,
			connectedChanUtil,
		)
	})
}

// ObserveCycle records one polling cycle's path, outcome and duration.
func ObserveCycle(path string, err error, duration time.Duration) {
	if scanCycles == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	scanCycles.WithLabelValues(path, result).Inc()
	scanLatency.WithLabelValues(path).Observe(duration.Seconds())
}

// IncError counts one cycle failure by error class.
func IncError(class string) {
	if scanErrors == nil {
		return
	}
	scanErrors.WithLabelValues(class).Inc()
}

// UpdateFromCycle refreshes the per-cycle gauges from an emitted record set.
func UpdateFromCycle(aps []*scan.AccessPoint) {
	if accessPoints == nil {
		return
	}

	byBand := make(map[string]int)
	lingering, covered := 0, 0
	for _, ap := range aps {
		byBand[ap.Band]++
		if ap.Lingering {
			lingering++
		}
		if ap.Covered() {
			covered++
		}
		if ap.InUse {
			connectedSignalDBm.Set(float64(ap.DBm()))
			if util, ok := ap.ChanUtilPct(); ok {
				connectedChanUtil.Set(float64(util))
			}
		}
	}

	accessPoints.Reset()
	for band, n := range byBand {
		accessPoints.WithLabelValues(band).Set(float64(n))
	}
	lingeringAPs.Set(float64(lingering))
	coveredAPs.Set(float64(covered))
}
