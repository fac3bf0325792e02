package tenant

import (
	"net/http"
	"strings"
)

// Middleware resolves the tenant of every request and attaches the
// ResolutionContext to the request context. Resolution failures
// short-circuit the request before any tenant-scoped handler runs.
func Middleware(resolver *Resolver, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant: resolver cannot be nil")
	}

	cfg := &middlewareConfig{
		errorHandler: DefaultErrorHandler,
		headers:      true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			rc, err := resolver.ResolveRequest(r)
			if err != nil {
				cfg.errorHandler(w, r, err)
				return
			}

			if cfg.headers {
				SetResponseHeaders(w, rc)
			}

			next.ServeHTTP(w, r.WithContext(WithResolution(r.Context(), rc)))
		})
	}
}

// RequireTenant rejects requests that carry no tenant-scoped resolution.
// Super-admin requests pass unless tenantOnly is set.
func RequireTenant(tenantOnly bool, errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := FromContext(r.Context())
			if !ok || !rc.Scoped() || (tenantOnly && !rc.HasTenant()) {
				errorHandler(w, r, ErrNoResolution)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin only lets super-admin resolutions through.
func RequireSuperAdmin(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsSuperAdmin(r.Context()) {
				errorHandler(w, r, ErrNoResolution)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
