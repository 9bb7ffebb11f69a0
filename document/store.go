// Package document implements the encrypted single-document store that holds
// the whole forum state.
//
// A Store reads and writes one Tree through a storage.Repository. On disk the
// tree is JSON sealed in a storage.Envelope under a key derived once from the
// configured secret. Legacy plaintext JSON files are accepted on read when
// the plaintext fallback is enabled and are sealed on the next write.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/opweb/internal/util"
	"github.com/jmcleod/opweb/storage"
)

var (
	// ErrPlaintextDisabled is returned when the backing data is plain JSON
	// and the legacy plaintext fallback is turned off.
	ErrPlaintextDisabled = errors.New("plaintext document rejected: legacy fallback disabled")
	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("document store closed")
)

var keyInfo = []byte("opweb document store v1")

// Store is the authoritative persistence unit. Read, Write and Update are
// serialized by one mutex so a read-modify-write through Update cannot lose
// a concurrent update within the process.
type Store struct {
	mu             sync.Mutex
	repo           storage.Repository
	key            *memguard.Enclave
	allowPlaintext bool
	logger         *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPlaintextFallback controls whether unencrypted legacy JSON is accepted
// on read. Enabled by default.
func WithPlaintextFallback(allow bool) Option {
	return func(s *Store) {
		s.allowPlaintext = allow
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// DeriveKey derives the document key from the configured secret. It is pure:
// the same secret always yields the same key.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("document secret must not be empty")
	}
	return util.HKDF(secret, nil, keyInfo)
}

// New returns a Store over repo whose key is derived from secret. The
// derived key is held in a memguard enclave for the life of the Store.
func New(repo storage.Repository, secret []byte, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository must not be nil")
	}
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	s := &Store{
		repo:           repo,
		key:            memguard.NewEnclave(key),
		allowPlaintext: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Close drops the key. Further operations return ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
}

// Read returns the current tree with every collection materialized. When no
// document exists yet a default tree is persisted and returned. Integrity
// failures are returned as errors wrapping storage.ErrCorrupt; no partial
// tree is ever returned.
func (s *Store) Read() (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Write seals the full tree and replaces the stored document in one
// operation. The caller's tree is not modified.
func (s *Store) Write(tree *Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(tree)
}

// Update runs fn on the current tree and writes the result, holding the
// store lock for the whole sequence. If fn returns an error nothing is
// written and the error is returned unchanged.
func (s *Store) Update(fn func(*Tree) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.readLocked()
	if err != nil {
		return err
	}
	if err := fn(tree); err != nil {
		return err
	}
	return s.writeLocked(tree)
}

// Inspect decodes the stored document without bootstrapping a missing one
// and reports whether it was sealed. A missing document yields an error
// wrapping storage.ErrNotFound.
func (s *Store) Inspect() (tree *Tree, sealed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, false, ErrClosed
	}

	data, err := s.repo.Load()
	if err != nil {
		return nil, false, fmt.Errorf("loading document: %w", err)
	}
	tree, err = s.decode(data)
	if err != nil {
		return nil, false, err
	}
	tree.Materialize()
	return tree, storage.HasMagic(data), nil
}

func (s *Store) readLocked() (*Tree, error) {
	if s.key == nil {
		return nil, ErrClosed
	}

	data, err := s.repo.Load()
	if errors.Is(err, storage.ErrNotFound) {
		tree := NewTree()
		if err := s.writeLocked(tree); err != nil {
			return nil, fmt.Errorf("bootstrapping document: %w", err)
		}
		s.logger.Info("document store bootstrapped with empty collections")
		return tree, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}

	tree, err := s.decode(data)
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			s.logger.Error("document integrity check failed", "error", err)
		}
		return nil, err
	}
	tree.Materialize()
	return tree, nil
}

func (s *Store) decode(data []byte) (*Tree, error) {
	if !storage.HasMagic(data) && json.Valid(data) {
		if !s.allowPlaintext {
			return nil, ErrPlaintextDisabled
		}
		var tree Tree
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("%w: legacy document: %v", storage.ErrCorrupt, err)
		}
		s.logger.Warn("read legacy plaintext document; it will be encrypted on next write")
		return &tree, nil
	}

	env, err := storage.UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}

	keyBuf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	plaintext, err := storage.Open(keyBuf.Bytes(), env)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(plaintext)

	var tree Tree
	if err := json.Unmarshal(plaintext, &tree); err != nil {
		return nil, fmt.Errorf("%w: decrypted document: %v", storage.ErrCorrupt, err)
	}
	return &tree, nil
}

func (s *Store) writeLocked(tree *Tree) error {
	if s.key == nil {
		return ErrClosed
	}
	if tree == nil {
		return fmt.Errorf("tree must not be nil")
	}

	out := *tree
	out.Materialize()
	plaintext, err := json.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	defer util.WipeBytes(plaintext)

	keyBuf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	env, err := storage.Seal(keyBuf.Bytes(), plaintext)
	if err != nil {
		return fmt.Errorf("sealing document: %w", err)
	}
	if err := s.repo.Save(env.Marshal()); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}
