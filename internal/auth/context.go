package auth

import (
	"context"

	"auditoria.org/internal/rbac"
)

type contextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the request
// context.
func ContextWithPrincipal(ctx context.Context, p rbac.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (rbac.Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(rbac.Principal)
	return p, ok
}
