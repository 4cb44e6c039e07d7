// Package telem keeps recent per-access-point signal history in RAM ring
// buffers, for trend estimation and downstream publishing.
package telem

import (
	"fmt"
	"sync"
	"time"

	"github.com/markus-lassfolk/wavescope/pkg/scan"
)

// Sample is one observation of one access point.
type Sample struct {
	BSSID     string    `json:"bssid"`
	Timestamp time.Time `json:"timestamp"`
	SignalPct int       `json:"signal_pct"`
	SignalDBm float64   `json:"signal_dbm"`
	ChannelNo int       `json:"channel"`
	FreqMHz   int       `json:"freq_mhz"`
	InUse     bool      `json:"in_use"`
	Lingering bool      `json:"lingering"`
}

// Store manages per-BSSID sample history with time-based retention.
type Store struct {
	mu sync.RWMutex

	retention time.Duration
	capacity  int
	buffers   map[string]*RingBuffer

	lastCleanup time.Time
}

// NewStore creates a telemetry store. Retention bounds how far back samples
// are kept; capacity bounds each buffer regardless of retention.
func NewStore(retention time.Duration, capacity int) (*Store, error) {
	if retention < time.Second {
		return nil, fmt.Errorf("retention must be at least 1s")
	}
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	return &Store{
		retention:   retention,
		capacity:    capacity,
		buffers:     make(map[string]*RingBuffer),
		lastCleanup: time.Now(),
	}, nil
}

// Record appends one sample per access point in the cycle.
func (s *Store) Record(aps []*scan.AccessPoint) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ap := range aps {
		key := ap.Key()
		buf := s.buffers[key]
		if buf == nil {
			buf = NewRingBuffer(s.capacity)
			s.buffers[key] = buf
		}
		buf.Add(&Sample{
			BSSID:     key,
			Timestamp: now,
			SignalPct: ap.Signal,
			SignalDBm: float64(ap.DBm()),
			ChannelNo: ap.Channel,
			FreqMHz:   ap.FreqMHz,
			InUse:     ap.InUse,
			Lingering: ap.Lingering,
		})
	}

	if now.Sub(s.lastCleanup) > s.retention {
		s.cleanupLocked(now)
		s.lastCleanup = now
	}
}

// History returns the retained samples for a BSSID, oldest first.
func (s *Store) History(bssid string) []*Sample {
	s.mu.RLock()
	buf := s.buffers[bssid]
	s.mu.RUnlock()
	if buf == nil {
		return nil
	}

	cutoff := time.Now().Add(-s.retention)
	all := buf.Samples()
	for i, sample := range all {
		if sample.Timestamp.After(cutoff) {
			return all[i:]
		}
	}
	return nil
}

// Tracked returns the BSSIDs with at least one retained sample.
func (s *Store) Tracked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buffers))
	for key := range s.buffers {
		keys = append(keys, key)
	}
	return keys
}

// cleanupLocked drops buffers whose newest sample fell out of retention.
func (s *Store) cleanupLocked(now time.Time) {
	cutoff := now.Add(-s.retention)
	for key, buf := range s.buffers {
		if last := buf.Last(); last == nil || last.Timestamp.Before(cutoff) {
			delete(s.buffers, key)
		}
	}
}
