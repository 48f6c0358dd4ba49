// Package storage keeps the model load ledger: one record per startup
// attempt to load the classifier artifact, with its digest and outcome. It
// uses BoltDB as the underlying storage engine. Patient inputs and
// predictions are never written here.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jroyseravila/heart/internal/common"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const loadsBucket = "model_loads" // Bucket name for model load records

// ErrNoRecords is returned when the ledger holds no matching record.
var ErrNoRecords = errors.New("no load records")

// LoadRecord is one model load attempt.
type LoadRecord struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Backend  string    `json:"backend"`
	Ready    bool      `json:"ready"`
	Error    string    `json:"error,omitempty"`
	SHA256   string    `json:"sha256,omitempty"`
	Size     int64     `json:"size,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Store provides persistent storage for load records using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance under dataPath, creating the directory
// when needed.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, common.DefaultLedgerFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(loadsBucket)); err != nil {
			return fmt.Errorf("create loads bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// RecordModelLoad appends a load record. ID and LoadedAt are filled in when
// empty. Keys sort by load time so cursors walk the ledger chronologically.
func (s *Store) RecordModelLoad(rec LoadRecord) (LoadRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(loadsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal load record: %w", err)
		}

		return b.Put(recordKey(rec), data)
	})
	return rec, err
}

// ModelLoads returns up to limit records, newest first. A limit of zero or
// less returns every record.
func (s *Store) ModelLoads(limit int) ([]LoadRecord, error) {
	var records []LoadRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(loadsBucket)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec LoadRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})

	return records, err
}

// PreviousSuccessfulLoad returns the newest successful load of path recorded
// strictly before the given record.
func (s *Store) PreviousSuccessfulLoad(path string, before LoadRecord) (LoadRecord, error) {
	var found *LoadRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(loadsBucket)).Cursor()
		upper := recordKey(before)

		k, v := c.Seek(upper)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil; k, v = c.Prev() {
			var rec LoadRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.Ready && rec.Path == path && rec.ID != before.ID {
				found = &rec
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return LoadRecord{}, err
	}
	if found == nil {
		return LoadRecord{}, ErrNoRecords
	}
	return *found, nil
}

func recordKey(rec LoadRecord) []byte {
	return []byte(fmt.Sprintf("%020d_%s", rec.LoadedAt.UnixNano(), rec.ID))
}
