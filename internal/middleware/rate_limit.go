package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/baharkarakas/ledger-backend/internal/api/httpx"
)

type tokenBucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	rate   float64
	burst  float64
	now    func() time.Time
}

func newTokenBucket(rps int, now func() time.Time) *tokenBucket {
	return &tokenBucket{
		tokens: float64(rps),
		last:   now(),
		rate:   float64(rps),
		burst:  float64(rps),
		now:    now,
	}
}

func (tb *tokenBucket) take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := tb.now()
	if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.burst, tb.tokens+elapsed*tb.rate)
		tb.last = now
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// RateLimit is a process-wide token bucket refilled at rps per second.
func RateLimit(rps int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	tb := newTokenBucket(rps, time.Now)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tb.take() {
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
