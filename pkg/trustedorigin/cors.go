package trustedorigin

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type corsConfig struct {
	methods     []string
	headers     []string
	expose      []string
	credentials bool
	maxAge      time.Duration
}

// CORSOption configures the CORS middleware.
type CORSOption func(*corsConfig)

// WithAllowedMethods sets the methods announced in preflight responses.
func WithAllowedMethods(methods ...string) CORSOption {
	return func(c *corsConfig) {
		c.methods = methods
	}
}

// WithAllowedHeaders sets the request headers announced in preflight responses.
func WithAllowedHeaders(headers ...string) CORSOption {
	return func(c *corsConfig) {
		c.headers = headers
	}
}

// WithExposedHeaders sets the response headers readable by trusted origins.
func WithExposedHeaders(headers ...string) CORSOption {
	return func(c *corsConfig) {
		c.expose = headers
	}
}

// WithAllowCredentials allows cookies and authorization headers on cross-origin calls.
func WithAllowCredentials(enabled bool) CORSOption {
	return func(c *corsConfig) {
		c.credentials = enabled
	}
}

// WithMaxAge sets how long browsers may cache a preflight response.
func WithMaxAge(d time.Duration) CORSOption {
	return func(c *corsConfig) {
		c.maxAge = d
	}
}

// CORS answers cross-origin requests using the registry as the single allow-list.
// Requests from untrusted origins get no CORS headers, so browsers block them;
// their preflights are rejected with 403.
func CORS(registry *Registry, opts ...CORSOption) func(http.Handler) http.Handler {
	if registry == nil {
		panic("trustedorigin: registry cannot be nil")
	}

	cfg := &corsConfig{
		methods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		headers: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Tenant-Domain"},
		expose:  []string{"X-Request-ID", "X-Tenant-ID", "X-Tenant-Name", "X-Tenant-Domain", "X-Domain-Match-Type"},
		maxAge:  10 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	methods := strings.Join(cfg.methods, ", ")
	headers := strings.Join(cfg.headers, ", ")
	expose := strings.Join(cfg.expose, ", ")
	maxAge := strconv.Itoa(int(cfg.maxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !registry.IsTrusted(origin) {
				if preflight {
					http.Error(w, "origin not allowed", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if cfg.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if preflight {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				if cfg.maxAge > 0 {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if expose != "" {
				h.Set("Access-Control-Expose-Headers", expose)
			}
			next.ServeHTTP(w, r)
		})
	}
}
