package tenant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/tenantgate/pkg/async"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

// Resolver maps request domains to tenants.
//
// Super-admin domains short-circuit before the cache and the store. Otherwise
// the cache is consulted, and on a miss the store is queried under a hard
// timeout. Only successful lookups are cached: not-found results and store
// failures are retried on the next request.
type Resolver struct {
	store              Store
	cache              Cache
	ownsCache          bool
	superAdmins        map[string]struct{}
	superAdminPrefixes []string
	domainHeaders      []string
	lookupTimeout      time.Duration
	statusPolicy       StatusPolicy
	clock              clock.Clock
	logger             *slog.Logger
	metrics            *ResolverMetrics
}

// NewResolver creates a resolver over store. Without WithCache it owns a
// MemoryCache with default settings, released by Close.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	if store == nil {
		panic("tenant: store cannot be nil")
	}

	r := &Resolver{
		store:         store,
		superAdmins:   map[string]struct{}{},
		lookupTimeout: DefaultLookupTimeout,
		statusPolicy:  StatusCached,
		clock:         clock.New(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("tenant.resolver"))

	if r.cache == nil {
		r.cache = NewMemoryCache(WithCacheLogger(r.logger))
		r.ownsCache = true
	}

	return r
}

// Resolve extracts the candidate domain from headers and resolves it.
// Forwarding headers count only when enabled with WithTrustedDomainHeaders.
func (r *Resolver) Resolve(ctx context.Context, h http.Header) (ResolutionContext, error) {
	return r.ResolveDomain(ctx, domainFrom(h, h.Get(HeaderHost), r.domainHeaders))
}

// ResolveRequest is Resolve with Request.Host as the host header.
func (r *Resolver) ResolveRequest(req *http.Request) (ResolutionContext, error) {
	return r.ResolveDomain(req.Context(), domainFrom(req.Header, requestHost(req), r.domainHeaders))
}

// ResolveDomain resolves an already extracted domain.
func (r *Resolver) ResolveDomain(ctx context.Context, domain string) (ResolutionContext, error) {
	rc, err := r.resolve(ctx, NormalizeDomain(domain))
	r.metrics.observe(rc, err)
	return rc, err
}

func (r *Resolver) resolve(ctx context.Context, domain string) (ResolutionContext, error) {
	if domain == "" {
		return ResolutionContext{}, ErrMissingDomain
	}

	if r.isSuperAdmin(domain) {
		return superAdminContext(domain, r.clock.Now()), nil
	}

	if entry, ok := r.cache.Get(ctx, domain); ok {
		return r.fromCache(ctx, domain, entry.Tenant)
	}

	t, err := r.lookup(ctx, domain)
	if err != nil {
		return ResolutionContext{}, err
	}
	return r.admit(ctx, domain, t, SourceStore)
}

func (r *Resolver) fromCache(ctx context.Context, domain string, cached *Tenant) (ResolutionContext, error) {
	if r.statusPolicy == StatusLive {
		t, err := r.lookup(ctx, domain)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				r.cache.Delete(ctx, domain)
			}
			return ResolutionContext{}, err
		}
		return r.admit(ctx, domain, t, SourceStore)
	}

	match, ok := cached.Match(domain)
	if !ok || !cached.Status.Servable() {
		r.cache.Delete(ctx, domain)
		if !ok {
			return ResolutionContext{}, ErrTenantNotFound
		}
		return ResolutionContext{}, ErrTenantInactive
	}
	return tenantContext(cached, domain, match, SourceCache, r.clock.Now()), nil
}

// admit validates a store result and caches it when it is servable.
func (r *Resolver) admit(ctx context.Context, domain string, t *Tenant, source Source) (ResolutionContext, error) {
	match, ok := t.Match(domain)
	if !ok {
		r.logger.ErrorContext(ctx, "tenant store returned a tenant that does not own the domain",
			logger.Domain(domain), logger.TenantID(t.ID.String()))
		r.cache.Delete(ctx, domain)
		return ResolutionContext{}, ErrTenantNotFound
	}

	if !t.Status.Servable() {
		r.cache.Delete(ctx, domain)
		return ResolutionContext{}, ErrTenantInactive
	}

	r.cache.Set(ctx, domain, t)
	return tenantContext(t, domain, match, source, r.clock.Now()), nil
}

// lookup queries the store, racing it against the lookup timeout.
// A lost race is a store failure, and whatever the store returns afterwards is discarded.
func (r *Resolver) lookup(ctx context.Context, domain string) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	t, err := async.Async(ctx, domain, r.store.FindByDomain).AwaitContext(ctx)
	switch {
	case err == nil && t != nil:
		return t, nil
	case err == nil, errors.Is(err, ErrTenantNotFound):
		return nil, ErrTenantNotFound
	case errors.Is(err, context.Canceled):
		// The caller went away; nothing is wrong with the store.
		r.logger.DebugContext(ctx, "tenant store lookup canceled", logger.Domain(domain))
		return nil, errors.Join(ErrStoreUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.ErrorContext(ctx, "tenant store lookup timed out",
			logger.Domain(domain), logger.Duration(r.lookupTimeout))
		return nil, errors.Join(ErrStoreTimeout, err)
	default:
		r.logger.ErrorContext(ctx, "tenant store lookup failed", logger.Domain(domain), logger.Error(err))
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
}

func (r *Resolver) isSuperAdmin(domain string) bool {
	if _, ok := r.superAdmins[domain]; ok {
		return true
	}
	for _, p := range r.superAdminPrefixes {
		if strings.HasPrefix(domain, p) {
			return true
		}
	}
	return false
}

// InvalidateDomain drops the cached resolution for domain.
func (r *Resolver) InvalidateDomain(ctx context.Context, domain string) {
	if d := NormalizeDomain(domain); d != "" {
		r.cache.Delete(ctx, d)
	}
}

// InvalidateTenant drops every cached resolution pointing at the tenant with the given ID.
// It needs a cache that can delete by tenant, such as MemoryCache; for other
// caches it is a no-op and reports false.
func (r *Resolver) InvalidateTenant(ctx context.Context, id uuid.UUID) bool {
	type tenantDeleter interface {
		DeleteTenant(ctx context.Context, id uuid.UUID) int
	}
	td, ok := r.cache.(tenantDeleter)
	if !ok {
		return false
	}
	n := td.DeleteTenant(ctx, id)
	r.logger.InfoContext(ctx, "tenant cache invalidated", logger.TenantID(id.String()), slog.Int("entries", n))
	return true
}

// ClearCache drops every cached resolution.
func (r *Resolver) ClearCache(ctx context.Context) {
	r.cache.Clear(ctx)
	r.logger.InfoContext(ctx, "tenant cache cleared")
}

// Cache returns the resolution cache in use.
func (r *Resolver) Cache() Cache {
	return r.cache
}

// Close releases the cache when the resolver created it.
func (r *Resolver) Close() error {
	if !r.ownsCache {
		return nil
	}
	if c, ok := r.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Resolution outcomes used as metric labels.
const (
	OutcomeSuperAdmin = "super_admin"
	OutcomeCacheHit   = "cache_hit"
	OutcomeFound      = "found"
	OutcomeNotFound   = "not_found"
	OutcomeInactive   = "inactive"
	OutcomeStoreError = "store_error"
	OutcomeNoDomain   = "no_domain"
	OutcomeCanceled   = "canceled"
)

// ResolverMetrics counts resolutions by terminal state.
type ResolverMetrics struct {
	Resolutions *prometheus.CounterVec
}

// NewResolverMetrics creates resolver metrics. Register them with PrometheusCollectors.
func NewResolverMetrics() *ResolverMetrics {
	const (
		namespace = "tenantgate"
		subsystem = "resolver"
	)

	return &ResolverMetrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resolutions_total",
			Help:      "Count of domain resolutions by outcome",
		}, []string{"outcome"}),
	}
}

// PrometheusCollectors returns the collectors to register.
func (m *ResolverMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.Resolutions}
}

func (m *ResolverMetrics) observe(rc ResolutionContext, err error) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome(rc, err)).Inc()
}

func outcome(rc ResolutionContext, err error) string {
	switch {
	case errors.Is(err, ErrMissingDomain):
		return OutcomeNoDomain
	case errors.Is(err, ErrTenantNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrTenantInactive):
		return OutcomeInactive
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case err != nil:
		return OutcomeStoreError
	case rc.IsSuperAdmin:
		return OutcomeSuperAdmin
	case rc.Source == SourceCache:
		return OutcomeCacheHit
	default:
		return OutcomeFound
	}
}
