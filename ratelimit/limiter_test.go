package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(max int, window time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(max, window)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_WindowReset(t *testing.T) {
	l, now := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d", i+1)
	}
	assert.False(t, l.Allow("1.2.3.4"), "fourth request in the window")

	*now = now.Add(time.Minute)
	assert.True(t, l.Allow("1.2.3.4"), "first request of the next window")
}

func TestLimiter_RejectedRequestsStillCount(t *testing.T) {
	l, now := newTestLimiter(1, time.Minute)
	assert.True(t, l.Allow("k"))
	for i := 0; i < 5; i++ {
		assert.False(t, l.Allow("k"))
	}
	*now = now.Add(30 * time.Second)
	assert.False(t, l.Allow("k"), "window is fixed, not sliding")
}

func TestLimiter_CheckRetryAfter(t *testing.T) {
	l, now := newTestLimiter(1, time.Minute)
	ok, retry := l.Check("k")
	require.True(t, ok)
	assert.Equal(t, time.Minute, retry)

	*now = now.Add(20 * time.Second)
	ok, retry = l.Check("k")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)
}

func TestLimiter_Err(t *testing.T) {
	l, now := newTestLimiter(1, time.Minute)
	require.NoError(t, l.Err("k"))

	*now = now.Add(15 * time.Second)
	err := l.Err("k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "k", limitErr.Key)
	assert.Equal(t, 45*time.Second, limitErr.RetryAfter)

	*now = now.Add(45 * time.Second)
	assert.NoError(t, l.Err("k"))
}

func TestLimiter_BoundaryBurst(t *testing.T) {
	l, now := newTestLimiter(3, time.Minute)
	*now = now.Add(59 * time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("k"))
	}
	*now = now.Add(time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("k"))
	}
}

func TestLimiter_IsolatesKeys(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	assert.True(t, l.Allow("b"), "one client's limit should not affect another")
	assert.Equal(t, 2, l.Len())
}

func TestLimiter_Defaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, DefaultMax, l.max)
	assert.Equal(t, DefaultWindow, l.window)
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(100, time.Hour)
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if l.Allow("shared") {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), admitted.Load())
}
