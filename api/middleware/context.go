package middleware

import (
	"context"

	"github.com/angelmondragon/ajshoes-client/internal/twin"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// IdentityFromContext returns the caller set by Auth.
func IdentityFromContext(ctx context.Context) (twin.Identity, bool) {
	if ctx == nil {
		return twin.Identity{}, false
	}
	id, ok := ctx.Value(ctxIdentity).(twin.Identity)
	return id, ok
}

// WithIdentity injects the caller into the context.
func WithIdentity(ctx context.Context, id twin.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, id)
}
