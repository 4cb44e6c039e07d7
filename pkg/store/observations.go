// Package store persists per-cycle access point observations to a local
// SQLite database for later analysis across daemon restarts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/markus-lassfolk/wavescope/pkg/logx"
	"github.com/markus-lassfolk/wavescope/pkg/scan"
)

// Config holds observation store configuration.
type Config struct {
	DatabasePath    string `json:"database_path"`
	RetentionDays   int    `json:"retention_days"`
	MaxObservations int    `json:"max_observations"`
}

// DefaultConfig returns the default observation store configuration.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "/var/lib/wavescope/observations.db",
		RetentionDays:   7,
		MaxObservations: 200000,
	}
}

// Observation is one stored access point sighting.
type Observation struct {
	ID           int       `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	BSSID        string    `json:"bssid"`
	SSID         string    `json:"ssid"`
	Band         string    `json:"band"`
	Channel      int       `json:"channel"`
	FreqMHz      int       `json:"freq_mhz"`
	SignalPct    int       `json:"signal_pct"`
	SignalDBm    float64   `json:"signal_dbm"`
	Security     string    `json:"security"`
	WiFiGen      string    `json:"wifi_gen"`
	BandwidthMHz int       `json:"bandwidth_mhz"`
	Manufacturer string    `json:"manufacturer"`
	InUse        bool      `json:"in_use"`
	Lingering    bool      `json:"lingering"`
}

// ObservationStore is the SQLite-backed observation history.
type ObservationStore struct {
	db     *sql.DB
	config *Config
	logger *logx.Logger
}

// NewObservationStore opens (creating if needed) the observation database.
func NewObservationStore(config *Config, logger *logx.Logger) (*ObservationStore, error) {
	if config == nil {
		config = DefaultConfig()
	}

	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &ObservationStore{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logger.Info("Observation store initialized",
		"database_path", config.DatabasePath,
		"retention_days", config.RetentionDays,
		"max_observations", config.MaxObservations)
	return s, nil
}

func (s *ObservationStore) initialize() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS ap_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		bssid TEXT NOT NULL,
		ssid TEXT,
		band TEXT,
		channel INTEGER,
		freq_mhz INTEGER,
		signal_pct INTEGER,
		signal_dbm REAL,
		security TEXT,
		wifi_gen TEXT,
		bandwidth_mhz INTEGER,
		manufacturer TEXT,
		in_use BOOLEAN DEFAULT FALSE,
		lingering BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_ap_observations_timestamp ON ap_observations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_ap_observations_bssid ON ap_observations(bssid);
	`

	_, err := s.db.Exec(createTableSQL)
	return err
}

// Close closes the underlying database.
func (s *ObservationStore) Close() error {
	return s.db.Close()
}

// StoreCycle persists one polling cycle's record set in a single
// transaction.
func (s *ObservationStore) StoreCycle(aps []*scan.AccessPoint) error {
	if len(aps) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO ap_observations (
		bssid, ssid, band, channel, freq_mhz, signal_pct, signal_dbm,
		security, wifi_gen, bandwidth_mhz, manufacturer, in_use, lingering
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ap := range aps {
		_, err := stmt.Exec(
			ap.Key(), ap.SSID, ap.Band, ap.Channel, ap.FreqMHz,
			ap.Signal, ap.DBm(),
			ap.Security, ap.WiFiGen, ap.BandwidthMHz, ap.Manufacturer,
			ap.InUse, ap.Lingering,
		)
		if err != nil {
			return fmt.Errorf("failed to insert observation for %s: %w", ap.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}
	return nil
}

// RecentForBSSID returns the newest observations for one address, newest
// first, up to limit.
func (s *ObservationStore) RecentForBSSID(bssid string, limit int) ([]Observation, error) {
	rows, err := s.db.Query(`
	SELECT id, timestamp, bssid, ssid, band, channel, freq_mhz, signal_pct,
	       signal_dbm, security, wifi_gen, bandwidth_mhz, manufacturer,
	       in_use, lingering
	FROM ap_observations
	WHERE bssid = ?
	ORDER BY timestamp DESC
	LIMIT ?
	`, bssid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		err := rows.Scan(&o.ID, &o.Timestamp, &o.BSSID, &o.SSID, &o.Band,
			&o.Channel, &o.FreqMHz, &o.SignalPct, &o.SignalDBm,
			&o.Security, &o.WiFiGen, &o.BandwidthMHz, &o.Manufacturer,
			&o.InUse, &o.Lingering)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Cleanup enforces the retention window and the row cap. Returns how many
// rows were deleted.
func (s *ObservationStore) Cleanup() (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	res, err := s.db.Exec(`DELETE FROM ap_observations WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire observations: %w", err)
	}
	expired, _ := res.RowsAffected()

	res, err = s.db.Exec(`
	DELETE FROM ap_observations WHERE id NOT IN (
		SELECT id FROM ap_observations ORDER BY id DESC LIMIT ?
	)`, s.config.MaxObservations)
	if err != nil {
		return expired, fmt.Errorf("failed to cap observations: %w", err)
	}
	capped, _ := res.RowsAffected()

	if expired+capped > 0 {
		s.logger.Debug("Observation cleanup complete", "deleted", expired+capped)
	}
	return expired + capped, nil
}

// Count returns the total number of stored observations.
func (s *ObservationStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ap_observations`).Scan(&n)
	return n, err
}
