// Package identity carries the acting user through a request context.
package identity

import (
	"context"
	"strings"
)

type contextKey struct{}

// WithUserID returns ctx carrying the acting user's ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, strings.TrimSpace(userID))
}

// UserID returns the acting user's ID, if one is set and non-empty.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
