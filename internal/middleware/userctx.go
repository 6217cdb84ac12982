package middleware

import "context"

type userKey struct{}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserID returns the authenticated user id set by Auth.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userKey{}).(string)
	return v, ok && v != ""
}
