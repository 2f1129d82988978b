package flow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var flowBucket = []byte("flows")

// Store persists flow records in BoltDB so interrupted flows survive a
// restart. The store holds records only; state machines are rebuilt fresh
// on load.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewStore opens (or creates) the BoltDB file at path
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open flow store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(flowBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create flow bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Put writes one record, keyed by flow id
func (s *Store) Put(record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode flow record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(flowBucket).Put([]byte(record.ID), data)
	})
}

// Get reads one record by flow id, returning nil when not found
func (s *Store) Get(id string) (*Record, error) {
	var record *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(flowBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		record = &Record{}
		return json.Unmarshal(data, record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read flow record: %w", err)
	}
	return record, nil
}

// List returns every persisted record
func (s *Store) List() ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(flowBucket).ForEach(func(_, data []byte) error {
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flow records: %w", err)
	}
	return records, nil
}

// Delete removes one record by flow id
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(flowBucket).Delete([]byte(id))
	})
}

// Close closes the underlying database file
func (s *Store) Close() error {
	return s.db.Close()
}
