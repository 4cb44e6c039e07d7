package ouidb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
)

// Bucket names for the bbolt database
const (
	vendorBucket = "vendor_lookups"
)

// Cache TTLs. Negative results expire sooner so a later registry update
// gets a chance to resolve them.
const (
	positiveTTL = 30 * 24 * time.Hour
	negativeTTL = 24 * time.Hour
)

// cachedVendor is one persisted resolution, negative results included.
type cachedVendor struct {
	Vendor   string    `json:"vendor"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache persists address-to-vendor resolutions across runs so the registry
// files only need parsing when a new address shows up.
type Cache struct {
	logger *logx.Logger
	db     *bolt.DB
}

// NewCache opens (creating if needed) the bbolt cache at path.
func NewCache(path string, logger *logx.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open vendor cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(vendorBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vendor cache: %w", err)
	}

	return &Cache{logger: logger, db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached vendor for mac. The second return is false when
// the address was never cached or the entry expired.
func (c *Cache) Get(mac string) (string, bool) {
	var entry cachedVendor
	found := false

	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(vendorBucket)).Get([]byte(mac))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return "", false
	}

	ttl := positiveTTL
	if entry.Vendor == "" {
		ttl = negativeTTL
	}
	if time.Since(entry.CachedAt) > ttl {
		return "", false
	}
	return entry.Vendor, true
}

// Put stores a resolution. Failures are logged and swallowed; the cache is
// an optimization, not a source of truth.
func (c *Cache) Put(mac, vendor string) {
	entry := cachedVendor{Vendor: vendor, CachedAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(vendorBucket)).Put([]byte(mac), raw)
	})
	if err != nil {
		c.logger.Debug("Vendor cache write failed", "mac", mac, "error", err)
	}
}

// Prune removes expired entries and returns how many were deleted.
func (c *Cache) Prune() (int, error) {
	deleted := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(vendorBucket))
		cur := b.Cursor()
		var stale [][]byte
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var entry cachedVendor
			if err := json.Unmarshal(v, &entry); err != nil {
				stale = append(stale, append([]byte(nil), k...))
				continue
			}
			ttl := positiveTTL
			if entry.Vendor == "" {
				ttl = negativeTTL
			}
			if time.Since(entry.CachedAt) > ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
