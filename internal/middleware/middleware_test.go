package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/ledger-backend/internal/auth"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestAuth(t *testing.T) {
	t.Parallel()
	tm := auth.NewTokenManager("a", "r", time.Minute, time.Hour)
	access, refresh, _, err := tm.GeneratePair("user-1")
	require.NoError(t, err)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := NewAuthMiddleware(tm)
	rest, stream := mw.Auth(next), mw.AuthStream(next)

	tests := []struct {
		name   string
		h      http.Handler
		header string
		query  string
		status int
	}{
		{"header", rest, "Bearer " + access, "", http.StatusNoContent},
		{"lowercase scheme", rest, "bearer " + access, "", http.StatusNoContent},
		{"query param on rest", rest, "", "?token=" + access, http.StatusUnauthorized},
		{"query param on stream", stream, "", "?token=" + access, http.StatusNoContent},
		{"header on stream", stream, "Bearer " + access, "", http.StatusNoContent},
		{"missing", rest, "", "", http.StatusUnauthorized},
		{"missing on stream", stream, "", "", http.StatusUnauthorized},
		{"refresh token", rest, "Bearer " + refresh, "", http.StatusUnauthorized},
		{"refresh token on stream", stream, "", "?token=" + refresh, http.StatusUnauthorized},
		{"garbage", rest, "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		tt.h.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.name)
		if tt.status == http.StatusNoContent {
			assert.Equal(t, "user-1", seen, tt.name)
		}
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	var fromCtx string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, fromCtx)
	assert.Equal(t, fromCtx, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", fromCtx)
}

func TestRecover(t *testing.T) {
	t.Parallel()
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestTokenBucket(t *testing.T) {
	t.Parallel()
	now := time.Unix(0, 0)
	tb := newTokenBucket(2, func() time.Time { return now })

	assert.True(t, tb.take())
	assert.True(t, tb.take())
	assert.False(t, tb.take())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, tb.take())
	assert.False(t, tb.take())
}

func TestMemoryCounter_WindowResets(t *testing.T) {
	t.Parallel()
	c := NewMemoryCounter()
	now := time.Unix(100, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	n, left, err := c.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, time.Minute, left)

	now = now.Add(30 * time.Second)
	n, left, _ = c.Hit(ctx, "k", time.Minute)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 30*time.Second, left)

	now = now.Add(31 * time.Second)
	n, _, _ = c.Hit(ctx, "k", time.Minute)
	assert.EqualValues(t, 1, n)
}

func TestRedisCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCounter(client)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, left, err := c.Hit(ctx, "transfer:user:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.True(t, left > 0 && left <= time.Minute)
	}

	mr.FastForward(time.Minute + time.Second)
	n, _, err := c.Hit(ctx, "transfer:user:u1", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestWindowLimit_PerUserThenIP(t *testing.T) {
	t.Parallel()
	h := WindowLimit("transfer", 2, time.Minute, NewMemoryCounter())(noContent)

	call := func(uid, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/transfer", nil)
		req.RemoteAddr = addr
		if uid != "" {
			req = req.WithContext(WithUserID(req.Context(), uid))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("u1", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusNoContent, call("u1", "10.0.0.2:1").Code)
	rec := call("u1", "10.0.0.3:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("u2", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusNoContent, call("", "10.0.0.9:1").Code)
	assert.Equal(t, http.StatusNoContent, call("", "10.0.0.9:2").Code)
	assert.Equal(t, http.StatusTooManyRequests, call("", "10.0.0.9:3").Code)
}
