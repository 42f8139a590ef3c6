// Package persistence records size measurements and load sessions so the
// bounded datasets the pipeline produces can be analyzed offline. Recording
// is gated by sizing.Config.TrackingEnabled; this is telemetry, not a result
// cache.
package persistence

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/sizing"
)

// TrackingStore persists measurement and load-session rows in SQLite.
type TrackingStore struct {
	db *sql.DB
}

// MeasurementRecord is one stored size measurement.
type MeasurementRecord struct {
	ID          int64
	Label       string
	SizeBytes   int64
	ItemCount   int
	WithinLimit bool
	MeasuredAt  time.Time
}

// LoadSessionRecord is one stored progressive-load outcome.
type LoadSessionRecord struct {
	ID               int64
	Source           string
	PagesLoaded      int
	TotalLoaded      int
	StoppedReason    string
	StoppedDueToSize bool
	CreatedAt        time.Time
}

// NewTrackingStore opens/creates the database at dbPath.
func NewTrackingStore(dbPath string) (*TrackingStore, error) {
	if dbPath == "" {
		return nil, errors.New("tracking store path required")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	store := &TrackingStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *TrackingStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT,
		size_bytes INTEGER NOT NULL,
		item_count INTEGER NOT NULL,
		within_limit BOOLEAN NOT NULL,
		measured_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS load_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		pages_loaded INTEGER NOT NULL,
		total_loaded INTEGER NOT NULL,
		stopped_reason TEXT NOT NULL,
		stopped_due_to_size BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *TrackingStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordMeasurement stores one size check outcome.
func (s *TrackingStore) RecordMeasurement(metrics sizing.Metrics, withinLimit bool) error {
	_, err := s.db.Exec(
		`INSERT INTO measurements (label, size_bytes, item_count, within_limit, measured_at) VALUES (?, ?, ?, ?, ?)`,
		metrics.Label, metrics.SizeBytes, metrics.ItemCount, withinLimit, metrics.MeasuredAt,
	)
	return err
}

// RecordLoadSession stores the outcome of one progressive load.
func (s *TrackingStore) RecordLoadSession(source string, result *loader.Result) error {
	if result == nil {
		return errors.New("load result required")
	}
	_, err := s.db.Exec(
		`INSERT INTO load_sessions (source, pages_loaded, total_loaded, stopped_reason, stopped_due_to_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		source, result.PagesLoaded, result.TotalLoaded, string(result.StoppedReason), result.StoppedDueToSize, time.Now().UTC(),
	)
	return err
}

// RecentMeasurements returns the newest measurement rows, newest first.
func (s *TrackingStore) RecentMeasurements(limit int) ([]MeasurementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, label, size_bytes, item_count, within_limit, measured_at
		 FROM measurements ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []MeasurementRecord
	for rows.Next() {
		var r MeasurementRecord
		if err := rows.Scan(&r.ID, &r.Label, &r.SizeBytes, &r.ItemCount, &r.WithinLimit, &r.MeasuredAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecentLoadSessions returns the newest load-session rows, newest first.
func (s *TrackingStore) RecentLoadSessions(limit int) ([]LoadSessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, source, pages_loaded, total_loaded, stopped_reason, stopped_due_to_size, created_at
		 FROM load_sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []LoadSessionRecord
	for rows.Next() {
		var r LoadSessionRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.PagesLoaded, &r.TotalLoaded, &r.StoppedReason, &r.StoppedDueToSize, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
