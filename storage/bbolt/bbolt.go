// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"fmt"

	"github.com/jmcleod/opweb/storage"
	"go.etcd.io/bbolt"
)

var (
	documentBucket = []byte("opweb")
	documentKey    = []byte("document")
)

// Store implements storage.Repository backed by a BBolt database. The whole
// document lives under one key; each Save is one BBolt transaction.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(documentBucket)
		if b == nil {
			return storage.ErrNotFound
		}
		v := b.Get(documentKey)
		if v == nil {
			return storage.ErrNotFound
		}
		// v is only valid for the life of the transaction.
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Save(data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(documentBucket)
		if err != nil {
			return err
		}
		return b.Put(documentKey, data)
	})
}
