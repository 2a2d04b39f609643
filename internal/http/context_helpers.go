package httpx

import (
	"context"

	"github.com/target/greeter-api/internal/adapters/oidc"
)

// principalKey is an unexported context key type to avoid collisions across packages.
type principalKey struct{}

// WithPrincipal returns a child context that carries the authenticated caller.
func WithPrincipal(ctx context.Context, p oidc.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller and a boolean indicating presence.
func PrincipalFromContext(ctx context.Context) (oidc.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(oidc.Principal)
	return p, ok
}
