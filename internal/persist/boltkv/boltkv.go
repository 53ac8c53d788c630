//go:build !js

// Package boltkv is a file-backed persist.KV for native hosts.
package boltkv

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("leakr")

// Store keeps values in a single bolt bucket.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the bolt file at path. A second process holding
// the file makes Open fail after one second.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns a copy of the value under key, or nil when it is missing.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	// bolt can't be interrupted mid-transaction
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketName)
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketName)
		}
		return b.Put([]byte(key), value)
	})
}

// Path returns the bolt file path.
func (s *Store) Path() string { return s.db.Path() }

// Close releases the file.
func (s *Store) Close() error { return s.db.Close() }
