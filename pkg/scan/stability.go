package scan

import (
	"time"
)

// The stability layer smooths the per-cycle feed with three independent
// policies, each its own collaborator keyed by lowercase BSSID. All state is
// owned by the single scanner worker, so none of it needs locking.

// stickyValues is the last known-good value of each sticky field for one
// BSSID. These fields are known to transiently report zero/empty even after
// a real value was observed (the upstream tools drop them, especially for
// 6 GHz), so they never regress within a session.
type stickyValues struct {
	bandwidthMHz  int
	rateMbps      float64
	wifiGen       string
	country       string
	centerFreqMHz *int
}

// StickyCache restores the last truthy value of the sticky fields whenever a
// cycle reports them falsy.
type StickyCache struct {
	values map[string]*stickyValues
}

// NewStickyCache creates an empty sticky-field cache.
func NewStickyCache() *StickyCache {
	return &StickyCache{values: make(map[string]*stickyValues)}
}

// Observe updates the cache from ap's truthy fields and back-fills its falsy
// ones from the cache.
func (c *StickyCache) Observe(ap *AccessPoint) {
	v, ok := c.values[ap.Key()]
	if !ok {
		v = &stickyValues{}
		c.values[ap.Key()] = v
	}

	if ap.BandwidthMHz != 0 {
		v.bandwidthMHz = ap.BandwidthMHz
	} else if v.bandwidthMHz != 0 {
		ap.BandwidthMHz = v.bandwidthMHz
	}
	if ap.RateMbps != 0 {
		v.rateMbps = ap.RateMbps
	} else if v.rateMbps != 0 {
		ap.RateMbps = v.rateMbps
	}
	if ap.WiFiGen != "" {
		v.wifiGen = ap.WiFiGen
	} else if v.wifiGen != "" {
		ap.WiFiGen = v.wifiGen
	}
	if ap.Country != "" {
		v.country = ap.Country
	} else if v.country != "" {
		ap.Country = v.country
	}
	if ap.CenterFreqMHz != nil {
		v.centerFreqMHz = ap.CenterFreqMHz
	} else if v.centerFreqMHz != nil {
		ap.CenterFreqMHz = v.centerFreqMHz
	}
}

// enrichmentSnapshot is everything the scan dump contributed for one BSSID,
// including the vendor identity it may have rewritten and the link
// telemetry of the associated AP.
type enrichmentSnapshot struct {
	enrichment         Enrichment
	manufacturer       string
	manufacturerSource string
	link               LinkStats
}

// EnrichmentMissCeiling bounds how many consecutive cycles a stale
// enrichment snapshot may be presented as current.
const EnrichmentMissCeiling = 5

// EnrichmentCache persists enrichment fields across cycles the scan dump
// missed. The dump's driver-side cache ages out, so coverage flickers; the
// PMF field (always set for a covered BSS) is the liveness signal.
type EnrichmentCache struct {
	snapshots map[string]*enrichmentSnapshot
	misses    map[string]int
}

// NewEnrichmentCache creates an empty enrichment-persistence cache.
func NewEnrichmentCache() *EnrichmentCache {
	return &EnrichmentCache{
		snapshots: make(map[string]*enrichmentSnapshot),
		misses:    make(map[string]int),
	}
}

// Observe snapshots a covered record and resets its miss counter, or
// restores the last snapshot while the counter stays under the ceiling.
// Past the ceiling the record is treated as truly unenriched.
func (c *EnrichmentCache) Observe(ap *AccessPoint) {
	key := ap.Key()
	if ap.Covered() {
		c.snapshot(ap)
		c.misses[key] = 0
		return
	}
	if snap, ok := c.snapshots[key]; ok && c.misses[key] < EnrichmentMissCeiling {
		ap.Enrichment = snap.enrichment
		ap.Manufacturer = snap.manufacturer
		ap.ManufacturerSource = snap.manufacturerSource
		ap.Link = snap.link
		c.misses[key]++
	}
}

// Refresh re-snapshots an already-covered record after later passes mutated
// it (counter-delta rates on the associated AP).
func (c *EnrichmentCache) Refresh(ap *AccessPoint) {
	if _, ok := c.snapshots[ap.Key()]; ok {
		c.snapshot(ap)
	}
}

func (c *EnrichmentCache) snapshot(ap *AccessPoint) {
	c.snapshots[ap.Key()] = &enrichmentSnapshot{
		enrichment:         ap.Enrichment,
		manufacturer:       ap.Manufacturer,
		manufacturerSource: ap.ManufacturerSource,
		link:               ap.Link,
	}
}

// counterSnapshot holds the previous cycle's TX counters for delta rates.
type counterSnapshot struct {
	txPackets int64
	txRetries int64
	txFailed  int64
}

// CounterDeltas derives TX retry/fail percentages for the associated AP
// from successive station-dump counter snapshots. Raw counters are
// monotonic since association; the rates only make sense per interval.
type CounterDeltas struct {
	prev map[string]counterSnapshot
}

// NewCounterDeltas creates an empty counter-delta tracker.
func NewCounterDeltas() *CounterDeltas {
	return &CounterDeltas{prev: make(map[string]counterSnapshot)}
}

// Observe computes the interval rates for an associated record and stores
// the current counters for the next cycle.
func (c *CounterDeltas) Observe(ap *AccessPoint) {
	if !ap.InUse {
		return
	}
	l := &ap.Link
	if l.TxPackets == nil || l.TxRetries == nil || l.TxFailed == nil {
		return
	}

	key := ap.Key()
	if prev, ok := c.prev[key]; ok {
		dPkts := *l.TxPackets - prev.txPackets
		dRetry := *l.TxRetries - prev.txRetries
		dFail := *l.TxFailed - prev.txFailed
		if dPkts > 0 && dRetry >= 0 && dFail >= 0 {
			retryRate := float64(dRetry) / float64(dPkts) * 100
			failRate := float64(dFail) / float64(dPkts) * 100
			l.TxRetryRatePct = &retryRate
			l.TxFailRatePct = &failRate
		}
	}
	c.prev[key] = counterSnapshot{
		txPackets: *l.TxPackets,
		txRetries: *l.TxRetries,
		txFailed:  *l.TxFailed,
	}
}

// lingerEntry is a cached record with its last-seen timestamp.
type lingerEntry struct {
	ap       *AccessPoint
	lastSeen time.Time
}

// LingerCache keeps recently-vanished APs visible for a grace window.
// Wireless visibility is inherently flaky; one missed poll should not make
// an AP blink out of the record set.
type LingerCache struct {
	window  time.Duration
	entries map[string]*lingerEntry
	now     func() time.Time
}

// NewLingerCache creates a linger cache with the given grace window.
// A zero window disables lingering entirely.
func NewLingerCache(window time.Duration) *LingerCache {
	return &LingerCache{
		window:  window,
		entries: make(map[string]*lingerEntry),
		now:     time.Now,
	}
}

// SetWindow updates the grace window.
func (c *LingerCache) SetWindow(window time.Duration) { c.window = window }

// Merge records every AP of the current cycle as fresh, appends cached
// records still inside the grace window with the Lingering flag set, and
// permanently evicts entries older than the window. An entry absent for
// exactly the window still lingers; strictly longer evicts.
func (c *LingerCache) Merge(aps []*AccessPoint) []*AccessPoint {
	now := c.now()
	fresh := make(map[string]bool, len(aps))
	for _, ap := range aps {
		ap.Lingering = false
		c.entries[ap.Key()] = &lingerEntry{ap: ap, lastSeen: now}
		fresh[ap.Key()] = true
	}

	if c.window <= 0 {
		for key := range c.entries {
			if !fresh[key] {
				delete(c.entries, key)
			}
		}
		return aps
	}

	for key, entry := range c.entries {
		if fresh[key] {
			continue
		}
		if now.Sub(entry.lastSeen) <= c.window {
			lingering := entry.ap.Clone()
			lingering.Lingering = true
			aps = append(aps, lingering)
		} else {
			delete(c.entries, key)
		}
	}
	return aps
}
