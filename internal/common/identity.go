package common

import (
	"context"
	"strings"
)

// DefaultIdentity is the identity used when a request carries no identity
// header or query parameter.
const DefaultIdentity = "default"

type contextKey int

const identityContextKey contextKey = iota

// WithIdentity stores a normalized identity string in the request context.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityContextKey, NormalizeIdentity(identity))
}

// IdentityFromContext retrieves the identity from context, or DefaultIdentity
// when no identity was attached.
func IdentityFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(identityContextKey).(string); ok && id != "" {
		return id
	}
	return DefaultIdentity
}

// NormalizeIdentity lowercases and trims an identity string. The identity is
// an opaque key — typically an email address — used only to scope storage.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
