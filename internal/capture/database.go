package capture

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const capturesBucket = "captures"

// DB defines the interface for the capture index
type DB interface {
	// SaveCapture saves a capture record
	SaveCapture(capture *Capture) error

	// GetCapture retrieves a capture by ID
	GetCapture(id string) (*Capture, error)

	// ListCaptures returns all captures, newest first
	ListCaptures() ([]*Capture, error)

	// DeleteCapture removes a capture record
	DeleteCapture(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(capturesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveCapture saves a capture record
func (b *BoltDB) SaveCapture(capture *Capture) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(capturesBucket))
		data, err := json.Marshal(capture)
		if err != nil {
			return fmt.Errorf("marshaling capture: %w", err)
		}
		return bucket.Put([]byte(capture.ID), data)
	})
}

// GetCapture retrieves a capture by ID
func (b *BoltDB) GetCapture(id string) (*Capture, error) {
	var capture *Capture
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(capturesBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
		}
		return json.Unmarshal(data, &capture)
	})
	if err != nil {
		return nil, err
	}
	return capture, nil
}

// ListCaptures returns all captures, newest first
func (b *BoltDB) ListCaptures() ([]*Capture, error) {
	captures := make([]*Capture, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(capturesBucket)).ForEach(func(k, v []byte) error {
			var capture Capture
			if err := json.Unmarshal(v, &capture); err != nil {
				return fmt.Errorf("unmarshaling capture: %w", err)
			}
			captures = append(captures, &capture)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(captures, func(i, j int) bool {
		return captures[i].CreatedAt.After(captures[j].CreatedAt)
	})
	return captures, nil
}

// DeleteCapture removes a capture record
func (b *BoltDB) DeleteCapture(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(capturesBucket))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
