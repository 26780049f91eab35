// Package storage persists analysis history for the EEG stress service.
// It uses BoltDB as the underlying storage engine; analyses are keyed by their
// time-ordered UUIDv7 identifiers so a reverse cursor walk yields the newest
// records first.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	dbFile          = "eeg-analyses.db"
	analysesBucket  = "analyses" // Bucket name for analysis summaries
	defaultListSize = 50
)

var ErrNotFound = errors.New("storage: record not found")

// Outcome values for AnalysisRecord.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// AnalysisRecord summarises one processed upload.
type AnalysisRecord struct {
	ID          string             `json:"id"`
	RequestID   string             `json:"request_id,omitempty"`
	FileName    string             `json:"file_name"`
	SHA256      string             `json:"sha256,omitempty"`
	SizeBytes   int64              `json:"size_bytes"`
	Outcome     string             `json:"outcome"`
	StressLevel string             `json:"stress_level,omitempty"`
	StressLabel string             `json:"stress_label,omitempty"`
	Confidence  float64            `json:"confidence,omitempty"`
	WaveMetrics map[string]float64 `json:"wave_metrics,omitempty"`
	Channels    int                `json:"channels,omitempty"`
	SampleRate  float64            `json:"sample_rate,omitempty"`
	Stage       string             `json:"stage,omitempty"`
	Error       string             `json:"error,omitempty"`
	DurationMS  float64            `json:"duration_ms"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Store provides persistent storage for analysis history using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(analysesBucket)); err != nil {
			return fmt.Errorf("create analyses bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(featuresBucket)); err != nil {
			return fmt.Errorf("create features bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing database for inspection. bbolt file locks
// still apply, so this waits at most one second for a running server.
func OpenReadOnly(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveAnalysis stores rec under its ID, replacing any previous value.
func (s *Store) SaveAnalysis(rec AnalysisRecord) error {
	if rec.ID == "" {
		return errors.New("storage: analysis record has no id")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(analysesBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		return b.Put([]byte(rec.ID), data)
	})
}

// GetAnalysis returns the record with the given id or ErrNotFound.
func (s *Store) GetAnalysis(id string) (AnalysisRecord, error) {
	var rec AnalysisRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(analysesBucket))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// ListAnalyses returns up to limit records, newest first. A non-positive limit
// uses the default page size.
func (s *Store) ListAnalyses(limit int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		limit = defaultListSize
	}

	records := make([]AnalysisRecord, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(analysesBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()

		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec AnalysisRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// CountAnalyses returns the number of stored analyses.
func (s *Store) CountAnalyses() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(analysesBucket)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}
