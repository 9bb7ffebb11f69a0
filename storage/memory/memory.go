// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sync"

	"github.com/jmcleod/opweb/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data []byte
	ok   bool
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Load() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), r.data...), nil
}

func (r *Repository) Save(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append([]byte(nil), data...)
	r.ok = true
	return nil
}
