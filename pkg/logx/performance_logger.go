package logx

import (
	"fmt"
	"sync"
	"time"
)

// PerformanceLogger tracks per-operation timing for the scan pipeline
// (nmcli reads, iw dumps, full cycles) and logs slow or failing operations.
type PerformanceLogger struct {
	logger  *Logger
	mu      sync.RWMutex
	metrics map[string]*PerformanceMetric
}

// PerformanceMetric aggregates timing data for one named operation.
type PerformanceMetric struct {
	Name          string        `json:"name"`
	Count         int64         `json:"count"`
	ErrorCount    int64         `json:"error_count"`
	TotalDuration time.Duration `json:"total_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastExecuted  time.Time     `json:"last_executed"`
}

// NewPerformanceLogger creates a new performance logger.
func NewPerformanceLogger(logger *Logger) *PerformanceLogger {
	return &PerformanceLogger{
		logger:  logger,
		metrics: make(map[string]*PerformanceMetric),
	}
}

// Track runs fn under the named metric and records its duration and outcome.
func (pl *PerformanceLogger) Track(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	pl.Record(name, time.Since(start), err)
	return err
}

// Record adds one completed operation to the named metric.
func (pl *PerformanceLogger) Record(name string, duration time.Duration, err error) {
	pl.mu.Lock()
	metric, ok := pl.metrics[name]
	if !ok {
		metric = &PerformanceMetric{Name: name, MinDuration: duration}
		pl.metrics[name] = metric
	}
	metric.Count++
	metric.TotalDuration += duration
	metric.LastExecuted = time.Now()
	if duration < metric.MinDuration {
		metric.MinDuration = duration
	}
	if duration > metric.MaxDuration {
		metric.MaxDuration = duration
	}
	metric.AvgDuration = metric.TotalDuration / time.Duration(metric.Count)
	if err != nil {
		metric.ErrorCount++
	}
	successRate := float64(metric.Count-metric.ErrorCount) / float64(metric.Count) * 100
	slow := duration > 5*time.Second
	pl.mu.Unlock()

	if err != nil {
		pl.logger.Debug("Operation failed",
			"metric", name,
			"duration", duration.String(),
			"error", err.Error(),
			"success_rate", fmt.Sprintf("%.2f%%", successRate))
	} else if slow {
		pl.logger.Warn("Slow operation",
			"metric", name,
			"duration", duration.String())
	}
}

// GetMetric returns a copy of the named metric, or nil if never recorded.
func (pl *PerformanceLogger) GetMetric(name string) *PerformanceMetric {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	if metric, ok := pl.metrics[name]; ok {
		copied := *metric
		return &copied
	}
	return nil
}

// LogMetrics logs a summary line per tracked operation.
func (pl *PerformanceLogger) LogMetrics() {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	for name, metric := range pl.metrics {
		successRate := float64(metric.Count-metric.ErrorCount) / float64(metric.Count) * 100
		pl.logger.Info("Performance metric summary",
			"metric", name,
			"total_operations", metric.Count,
			"avg_duration", metric.AvgDuration.String(),
			"min_duration", metric.MinDuration.String(),
			"max_duration", metric.MaxDuration.String(),
			"success_rate", fmt.Sprintf("%.2f%%", successRate),
			"error_count", metric.ErrorCount)
	}
}
