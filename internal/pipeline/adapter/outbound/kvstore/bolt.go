package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
)

var bucketRecords = []byte("records")

// BoltStore persists records in a local bbolt database, keyed by file ID.
// It gives metadata the same crash durability as the blobs on disk.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the bbolt database at dbPath. The
// parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("kvstore: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kvstore: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Put stores a record, replacing any existing record with the same ID.
func (s *BoltStore) Put(_ context.Context, rec *domain.FileRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("kvstore: bolt put: %w", err)
	}
	return nil
}

// Get returns the record for id, or port.ErrNotFound.
func (s *BoltStore) Get(_ context.Context, id string) (*domain.FileRecord, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketRecords).Get([]byte(id)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: bolt get: %w", err)
	}
	if data == nil {
		return nil, port.ErrNotFound
	}
	return decodeRecord(data)
}

// Delete removes the record for id. Deleting a missing record is a no-op.
func (s *BoltStore) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("kvstore: bolt delete: %w", err)
	}
	return nil
}

// Keys returns the IDs of all stored records.
func (s *BoltStore) Keys(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: bolt keys: %w", err)
	}
	return ids, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }
