package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultLookupTimeout bounds a single tenant store lookup.
const DefaultLookupTimeout = 2 * time.Second

// StatusPolicy decides whether a cached tenant status is trusted.
type StatusPolicy int

const (
	// StatusCached trusts the cached snapshot; a suspension becomes visible
	// at the latest one cache TTL later.
	StatusCached StatusPolicy = iota
	// StatusLive re-reads the tenant from the store on every cache hit and
	// fails the request when the store cannot answer.
	StatusLive
)

// ParseStatusPolicy parses "cached" or "live".
func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cached":
		return StatusCached, nil
	case "live":
		return StatusLive, nil
	default:
		return StatusCached, errors.New("tenant: status policy must be \"cached\" or \"live\"")
	}
}

func (p StatusPolicy) String() string {
	if p == StatusLive {
		return "live"
	}
	return "cached"
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache sets the resolution cache. Passing nil disables caching.
func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) {
		if c == nil {
			c = NoOpCache{}
		}
		r.cache = c
		r.ownsCache = false
	}
}

// WithSuperAdminDomains sets the exact domains whose requests resolve to a
// super-admin context without touching the cache or the store.
func WithSuperAdminDomains(domains ...string) ResolverOption {
	return func(r *Resolver) {
		r.superAdmins = make(map[string]struct{}, len(domains))
		for _, d := range domains {
			if d = NormalizeDomain(d); d != "" {
				r.superAdmins[d] = struct{}{}
			}
		}
	}
}

// WithSuperAdminPrefixes sets host prefixes treated as super-admin hosts,
// meant for local development hosts such as "127.0.0." or "admin.localhost".
// A candidate matches when it starts with one of the prefixes.
func WithSuperAdminPrefixes(prefixes ...string) ResolverOption {
	return func(r *Resolver) {
		r.superAdminPrefixes = r.superAdminPrefixes[:0]
		for _, p := range prefixes {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				r.superAdminPrefixes = append(r.superAdminPrefixes, p)
			}
		}
	}
}

// WithTrustedDomainHeaders lets X-Tenant-Domain and X-Original-Host replace
// the Host header. By default both are ignored, since any client can send
// them and name a super-admin domain. Enable only the headers a trusted proxy
// sets and strips from client requests. Enabled headers keep their fixed
// priority: the override header wins over the original-host header. Other
// names are ignored.
func WithTrustedDomainHeaders(headers ...string) ResolverOption {
	return func(r *Resolver) {
		r.domainHeaders = trustedForwardingHeaders(headers)
	}
}

// WithLookupTimeout sets the hard limit for a single store lookup.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// WithStatusPolicy selects how cached tenant statuses are trusted.
func WithStatusPolicy(p StatusPolicy) ResolverOption {
	return func(r *Resolver) {
		r.statusPolicy = p
	}
}

// WithClock replaces the wall clock used for ResolvedAt, mostly for tests.
func WithClock(c clock.Clock) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records resolution outcomes.
func WithMetrics(m *ResolverMetrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// ErrorHandler handles errors that occur during tenant resolution.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type middlewareConfig struct {
	errorHandler ErrorHandler
	skipPaths    []string
	headers      bool
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// WithSkipPaths sets path prefixes that bypass tenant resolution.
func WithSkipPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// WithResponseHeaders toggles the advisory X-Tenant-* response headers. Enabled by default.
func WithResponseHeaders(enabled bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.headers = enabled
	}
}

// DefaultErrorHandler answers with generic messages so responses never reveal
// whether a domain exists or which check failed.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsResolutionFailure(err):
		http.Error(w, "tenant not resolved", http.StatusNotFound)
	case errors.Is(err, ErrNoResolution):
		http.Error(w, "access denied", http.StatusForbidden)
	default:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
}
