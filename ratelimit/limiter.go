// Package ratelimit implements a fixed-window request limiter keyed by
// client, plus the net/http middleware and client-IP resolution used to
// apply it.
package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMax is the number of requests a client may make per window.
	DefaultMax = 120
	// DefaultWindow is the length of one counting window.
	DefaultWindow = 60 * time.Second
)

// ErrRateLimited is matched by every error Err returns.
var ErrRateLimited = errors.New("too many requests")

// LimitError reports a rejected request and when its window resets.
type LimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("too many requests from %s; retry after %s", e.Key, e.RetryAfter)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per client key in fixed windows. A client may
// burst up to twice the maximum across a window boundary.
//
// Buckets are never evicted, so memory grows with the number of distinct
// keys seen over the process lifetime.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int
	window  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the structured logger used for rejections. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New returns a limiter admitting max requests per window for each key.
// Non-positive arguments select DefaultMax and DefaultWindow.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		max:     max,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Allow counts one request for key and reports whether it is admitted.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Check(key)
	return ok
}

// Check counts one request for key. It reports whether the request is
// admitted and how long until the key's window resets.
func (l *Limiter) Check(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}
	if !now.Before(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(l.window)
	}
	b.count++
	return b.count <= l.max, b.resetAt.Sub(now)
}

// Err counts one request for key and returns a *LimitError when it is
// rejected.
func (l *Limiter) Err(key string) error {
	ok, retryAfter := l.Check(key)
	if ok {
		return nil
	}
	return &LimitError{Key: key, RetryAfter: retryAfter}
}

// Len returns the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
