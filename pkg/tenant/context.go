package tenant

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// contextKey prevents collisions with other packages using context values
type contextKey struct{}

// WithResolution attaches rc to ctx.
func WithResolution(ctx context.Context, rc ResolutionContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns a copy of the resolution attached to ctx.
func FromContext(ctx context.Context) (ResolutionContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(ResolutionContext)
	return rc, ok
}

// IDFromContext provides fast access to the tenant ID.
// It returns false for super-admin resolutions, which carry no tenant.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	rc, ok := FromContext(ctx)
	if !ok || !rc.HasTenant() {
		return uuid.Nil, false
	}
	return rc.TenantID, true
}

// IsSuperAdmin reports whether the request was resolved from a super-admin domain.
func IsSuperAdmin(ctx context.Context) bool {
	rc, ok := FromContext(ctx)
	return ok && rc.IsSuperAdmin
}

// MustFromContext panics if no resolution is found. Use only in handlers
// mounted behind Middleware.
func MustFromContext(ctx context.Context) ResolutionContext {
	rc, ok := FromContext(ctx)
	if !ok {
		panic("tenant: no resolution in context")
	}
	return rc
}

// LoggerExtractor returns a function that enriches log records with the tenant ID,
// or with super_admin=true for operator requests.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		rc, ok := FromContext(ctx)
		switch {
		case !ok:
			return slog.Attr{}, false
		case rc.IsSuperAdmin:
			return slog.Bool("super_admin", true), true
		case rc.HasTenant():
			return slog.String("tenant_id", rc.TenantID.String()), true
		default:
			return slog.Attr{}, false
		}
	}
}
