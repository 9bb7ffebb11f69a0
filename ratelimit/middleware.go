package ratelimit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc derives the client key for a request.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the limit with 429, a Retry-After header
// and a JSON error body. A nil keyFn keys by ClientIP with no trusted
// proxies.
func Middleware(l *Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = func(r *http.Request) string { return ClientIP(r, nil) }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			var limitErr *LimitError
			if err := l.Err(key); errors.As(err, &limitErr) {
				l.logger.Warn("request rate limited",
					"client", key, "method", r.Method, "path", r.URL.Path)
				writeRateLimited(w, limitErr.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
}

func retryAfterString(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
