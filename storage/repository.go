// Package storage provides the backing-store abstraction for the encrypted
// document file and its on-disk envelope format.
package storage

import "errors"

var (
	// ErrNotFound is returned by Load when no document has been saved yet.
	ErrNotFound = errors.New("document not found")
	// ErrCorrupt indicates data that is not a valid envelope for the
	// configured key: bad signature, truncation, or a failed tag check.
	ErrCorrupt = errors.New("corrupt or foreign data")
)

// Repository persists one opaque document blob. Save must replace the
// previous contents in a single operation so a reader never observes a mix
// of old and new bytes.
type Repository interface {
	Load() ([]byte, error)
	Save(data []byte) error
}
