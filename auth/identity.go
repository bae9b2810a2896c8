package auth

import (
	"context"
	"time"
)

// Identity is the verified caller of a request.
type Identity struct {
	// Subject is the sub claim, the stable user ID.
	Subject string

	// Claims holds every claim of the token.
	Claims map[string]any

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Claim returns a string claim, or "" when it is absent or not a string.
func (id *Identity) Claim(name string) string {
	s, _ := id.Claims[name].(string)
	return s
}

type contextKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity attached by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// SubjectFromContext returns the caller's subject, or "" when anonymous.
func SubjectFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Subject
	}
	return ""
}
