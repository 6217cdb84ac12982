package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baharkarakas/ledger-backend/internal/api/httpx"
	"github.com/baharkarakas/ledger-backend/internal/logger"
)

// WindowCounter counts hits per key inside a fixed window. It returns the
// count including this hit and the time left until the window resets.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memoryWindow), now: time.Now}
}

func (c *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	w := c.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		c.sweep(now)
		w = &memoryWindow{resetAt: now.Add(window)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

func (c *MemoryCounter) sweep(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, k)
		}
	}
}

const windowKeyPrefix = "ratelimit:"

// RedisCounter shares windows across instances.
type RedisCounter struct {
	client redis.UniversalClient
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := windowKeyPrefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr: %w", err)
	}
	left := ttl.Val()
	if incr.Val() == 1 || left < 0 {
		if err := c.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis pexpire: %w", err)
		}
		left = window
	}
	return incr.Val(), left, nil
}

// WindowLimit allows limit requests per caller per window. Callers are keyed
// by authenticated user id, falling back to the remote IP. Counter failures
// let the request through.
func WindowLimit(name string, limit int, window time.Duration, counter WindowCounter) func(http.Handler) http.Handler {
	if limit <= 0 || counter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":" + callerKey(r)
			n, left, err := counter.Hit(r.Context(), key, window)
			if err != nil {
				logger.From(r.Context()).Warn("rate limit counter unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(limit)-n), 10))
			if n > int64(limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(left.Seconds()))))
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many transfer attempts, try again later", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if uid, ok := UserID(r.Context()); ok {
		return "user:" + uid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
