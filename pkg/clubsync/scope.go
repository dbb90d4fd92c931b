package clubsync

import "context"

type tenantScopeKey struct{}

// WithTenantScope returns a context scoped to one tenant. Admin operations
// refuse tenant ids that differ from the scope.
func WithTenantScope(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantScopeKey{}, tenantID)
}

// TenantScope returns the tenant the context is scoped to, if any
func TenantScope(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantScopeKey{}).(string)
	return tenantID, ok && tenantID != ""
}
