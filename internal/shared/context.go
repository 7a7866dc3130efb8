package shared

import (
	"context"

	"github.com/projtrack/projtrack/internal/access"
)

type sessionContextKey struct{}

type identityContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithIdentity stores the resolved caller in context.
func ContextWithIdentity(ctx context.Context, ident *access.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext returns the resolved caller, or nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *access.Identity {
	ident, _ := ctx.Value(identityContextKey{}).(*access.Identity)
	return ident
}
