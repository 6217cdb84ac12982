package middleware

import (
	"net/http"
	"strings"

	"github.com/baharkarakas/ledger-backend/internal/api/httpx"
	"github.com/baharkarakas/ledger-backend/internal/auth"
	"github.com/baharkarakas/ledger-backend/internal/logger"
)

type AuthMiddleware struct {
	TM *auth.TokenManager
}

func NewAuthMiddleware(tm *auth.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{TM: tm}
}

// Auth accepts an access token from the Authorization header only.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return m.authenticate(next, false)
}

// AuthStream also accepts the token query param, for websocket upgrades
// that cannot set headers.
func (m *AuthMiddleware) AuthStream(next http.Handler) http.Handler {
	return m.authenticate(next, true)
}

func (m *AuthMiddleware) authenticate(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" && allowQuery {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		claims, err := m.TM.ParseAccess(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		ctx := WithUserID(r.Context(), claims.UserID)
		ctx = logger.With(ctx, logger.From(ctx).With("user_id", claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearer(r *http.Request) string {
	ah := r.Header.Get("Authorization")
	if len(ah) > len("bearer ") && strings.EqualFold(ah[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(ah[len("bearer "):])
	}
	return ""
}
