package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/baharkarakas/ledger-backend/internal/logger"
)

type reqIDKeyType struct{}

var requestIDKey reqIDKeyType

const requestIDHeader = "X-Request-Id"

func RequestIDFrom(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		return s
	}
	return ""
}

// RequestID reuses a caller-supplied id when present and attaches it to the
// request logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = logger.With(ctx, logger.From(ctx).With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
