// Package challenge keeps short-lived, single-use verification challenges
// such as registration captchas or emailed second-factor codes.
package challenge

import (
	"crypto/subtle"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long a challenge stays answerable.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval is the cadence of the background expiry sweep.
	DefaultSweepInterval = 10 * time.Second
)

type record struct {
	expected  string
	expiresAt time.Time
}

// Store is a thread-safe in-memory challenge store. Records are lost on
// restart.
type Store struct {
	mu      sync.Mutex
	records map[string]record
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore returns an empty store. A non-positive ttl selects DefaultTTL.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		records: make(map[string]record),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create stores expected under a new random id and returns the id.
func (s *Store) Create(expected string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.records[id.String()] = record{
		expected:  normalizeAnswer(expected),
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
	return id.String(), nil
}

// Consume reports whether answer matches the challenge id. A found,
// unexpired challenge is deleted whether or not the answer matched. Unknown,
// expired and wrong answers are indistinguishable to the caller.
func (s *Store) Consume(id, answer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false
	}
	delete(s.records, id)
	if !s.now().Before(rec.expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rec.expected), []byte(normalizeAnswer(answer))) == 1
}

// Len returns the number of stored challenges, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep removes expired challenges and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval on a background goroutine until
// Close is called. It must be called at most once.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.doneCh = make(chan struct{})
	go s.sweepLoop(interval)
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("challenge sweep", "removed", n)
			}
		}
	}
}

// Close stops the sweeper, if running, and waits for it to exit.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.doneCh != nil {
			<-s.doneCh
		}
	})
}

func normalizeAnswer(a string) string {
	return strings.TrimSpace(a)
}
