package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantgate/pkg/clientip"
	"github.com/dmitrymomot/tenantgate/pkg/environment"
	"github.com/dmitrymomot/tenantgate/pkg/httpserver"
	"github.com/dmitrymomot/tenantgate/pkg/isolation"
	"github.com/dmitrymomot/tenantgate/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
	"github.com/dmitrymomot/tenantgate/pkg/tenantstore"
	"github.com/dmitrymomot/tenantgate/pkg/trustedorigin"
)

type gateway struct {
	handler  http.Handler
	monitor  *isolation.Monitor
	registry *trustedorigin.Registry
	acme     *tenant.Tenant
	globex   *tenant.Tenant
}

func newGateway(t *testing.T, upstream *url.URL, opts ...func(*routerDeps)) *gateway {
	t.Helper()
	return newGatewayWithResolver(t, upstream, nil, opts...)
}

func newGatewayWithResolver(t *testing.T, upstream *url.URL, resolverOpts []tenant.ResolverOption, opts ...func(*routerDeps)) *gateway {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	acme := &tenant.Tenant{ID: uuid.New(), Name: "Acme", PrimaryDomain: "acme.example.com", Status: tenant.StatusActive}
	globex := &tenant.Tenant{ID: uuid.New(), Name: "Globex", PrimaryDomain: "globex.example.com", CustomDomains: []string{"shop.globex.io"}, Status: tenant.StatusTrial}

	store, err := tenantstore.NewMemory(acme, globex)
	require.NoError(t, err)

	resolverOpts = append([]tenant.ResolverOption{tenant.WithSuperAdminDomains("localhost"), tenant.WithLogger(log)}, resolverOpts...)
	resolver := tenant.NewResolver(store, resolverOpts...)
	t.Cleanup(func() { _ = resolver.Close() })

	registry := trustedorigin.NewRegistry(store, trustedorigin.WithLogger(log))
	require.NoError(t, registry.Refresh(context.Background()))

	monitor := isolation.NewMonitor(isolation.WithLogger(log), isolation.WithMetrics(isolation.NewMetrics()))
	reg := prometheus.NewRegistry()

	deps := routerDeps{
		env:      environment.Production,
		log:      log,
		resolver: resolver,
		registry: registry,
		monitor:  monitor,
		enforcer: isolation.NewEnforcer(monitor, isolation.WithEnforcerLogger(log)),
		gatherer: reg,
		checks:   map[string]httpserver.Check{"store": func(context.Context) error { return nil }},
		upstream: upstream,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &gateway{
		handler:  newRouter(deps),
		monitor:  monitor,
		registry: registry,
		acme:     acme,
		globex:   globex,
	}
}

func (g *gateway) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, r)
	return rec
}

func TestRouter_HealthSkipsResolution(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)

	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "http://unknown.example/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "http://unknown.example/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "http://unknown.example/metrics", nil).Code)
}

func TestRouter_Whoami(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)

	rec := g.do(http.MethodGet, "http://shop.globex.io/api/whoami", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body whoamiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, g.globex.ID.String(), body.TenantID)
	assert.Equal(t, "shop.globex.io", body.MatchedDomain)
	assert.Equal(t, string(tenant.MatchCustom), body.MatchType)
	assert.Equal(t, g.globex.ID.String(), rec.Header().Get(tenant.HeaderTenantID))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_ResolutionFailures(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)

	rec := g.do(http.MethodGet, "http://unknown.example/api/whoami", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tenant not resolved\n", rec.Body.String())

	// Super-admins have no tenant to act as.
	rec = g.do(http.MethodGet, "http://localhost/api/whoami", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_AdminRequiresSuperAdmin(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)

	assert.Equal(t, http.StatusForbidden, g.do(http.MethodGet, "http://acme.example.com/admin/isolation/stats", nil).Code)
	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "http://localhost/admin/isolation/stats", nil).Code)
}

func TestRouter_ForwardedDomainCannotClaimSuperAdmin(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)
	g.do(http.MethodGet, "http://acme.example.com/api/tenants/"+g.globex.ID.String(), nil)
	require.Equal(t, uint64(1), g.monitor.Stats().Total)

	for _, name := range []string{tenant.HeaderDomainOverride, tenant.HeaderOriginalHost} {
		spoofed := http.Header{name: {"localhost"}}

		assert.Equal(t, http.StatusForbidden,
			g.do(http.MethodGet, "http://acme.example.com/admin/isolation/violations", spoofed).Code, name)
		assert.Equal(t, http.StatusForbidden,
			g.do(http.MethodDelete, "http://acme.example.com/admin/isolation/violations", spoofed).Code, name)
	}
	assert.Equal(t, uint64(1), g.monitor.Stats().Total, "violations survive spoofed admin requests")

	// The request is still served as the tenant behind the real host.
	rec := g.do(http.MethodGet, "http://acme.example.com/api/whoami", http.Header{tenant.HeaderDomainOverride: {"globex.example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, g.acme.ID.String(), rec.Header().Get(tenant.HeaderTenantID))
}

func TestRouter_TrustedDomainOverride(t *testing.T) {
	t.Parallel()

	g := newGatewayWithResolver(t, nil, []tenant.ResolverOption{tenant.WithTrustedDomainHeaders(tenant.HeaderDomainOverride)})

	rec := g.do(http.MethodGet, "http://internal-proxy/api/whoami", http.Header{tenant.HeaderDomainOverride: {"shop.globex.io"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, g.globex.ID.String(), rec.Header().Get(tenant.HeaderTenantID))

	// Only the enabled header is honored.
	rec = g.do(http.MethodGet, "http://acme.example.com/api/whoami", http.Header{tenant.HeaderOriginalHost: {"shop.globex.io"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, g.acme.ID.String(), rec.Header().Get(tenant.HeaderTenantID))
}

func TestRouter_CrossTenantAccessIsDenied(t *testing.T) {
	t.Parallel()

	forwarded := make(chan http.Header, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded <- r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)
	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	g := newGateway(t, target)

	rec := g.do(http.MethodGet, "http://acme.example.com/api/tenants/"+g.globex.ID.String()+"/projects", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, forwarded, "denied requests never reach the upstream")

	violations := g.monitor.Recent(0)
	require.Len(t, violations, 1)
	assert.Equal(t, g.globex.ID.String(), violations[0].AttemptedTenantID)
	assert.Equal(t, g.acme.ID.String(), violations[0].ActualTenantID)
	assert.Equal(t, isolation.SeverityHigh, violations[0].Severity)

	rec = g.do(http.MethodGet, "http://acme.example.com/api/tenants/"+g.acme.ID.String()+"/projects",
		http.Header{tenant.HeaderTenantID: {g.globex.ID.String()}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, forwarded, 1)
	h := <-forwarded
	assert.Equal(t, g.acme.ID.String(), h.Get(tenant.HeaderTenantID), "client supplied tenant headers are replaced")
	assert.NotEmpty(t, h.Get("X-Request-ID"))

	rec = g.do(http.MethodDelete, "http://acme.example.com/api/projects/1?tenant_id="+g.globex.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, isolation.SeverityCritical, g.monitor.Recent(1)[0].Severity)
}

func TestRouter_AdminViolations(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)
	g.do(http.MethodGet, "http://acme.example.com/api/tenants/"+g.globex.ID.String(), nil)
	g.do(http.MethodGet, "http://acme.example.com/api/reports?tenant_id="+g.globex.ID.String(), nil)

	rec := g.do(http.MethodGet, "http://localhost/admin/isolation/violations?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []isolation.Violation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, isolation.FieldQuery, recent[0].Field)

	rec = g.do(http.MethodGet, "http://localhost/admin/isolation/stats", nil)
	var stats isolation.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(2), stats.Total)

	assert.Equal(t, http.StatusBadRequest, g.do(http.MethodGet, "http://localhost/admin/isolation/violations?limit=x", nil).Code)

	assert.Equal(t, http.StatusNoContent, g.do(http.MethodDelete, "http://localhost/admin/isolation/violations", nil).Code)
	assert.Zero(t, g.monitor.Stats().Total)
}

func TestRouter_AdminCacheAndOrigins(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)

	assert.Equal(t, http.StatusNoContent, g.do(http.MethodDelete, "http://localhost/admin/cache/acme.example.com", nil).Code)
	assert.Equal(t, http.StatusNoContent, g.do(http.MethodDelete, "http://localhost/admin/cache", nil).Code)

	rec := g.do(http.MethodPost, "http://localhost/admin/origins/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res originsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, trustedorigin.SourceFresh, res.Source)
	assert.Contains(t, res.Origins, "https://acme.example.com")
	assert.Contains(t, res.Origins, "https://shop.globex.io")
	assert.Nil(t, res.ExtendedAt)
}

func TestRouter_CORS(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil)

	rec := g.do(http.MethodOptions, "http://acme.example.com/api/whoami", http.Header{
		"Origin":                        {"https://shop.globex.io"},
		"Access-Control-Request-Method": {http.MethodGet},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.globex.io", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = g.do(http.MethodOptions, "http://acme.example.com/api/whoami", http.Header{
		"Origin":                        {"https://evil.example"},
		"Access-Control-Request-Method": {http.MethodGet},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ThrottlesDomainProbing(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	g := newGateway(t, nil, func(d *routerDeps) {
		d.clientIP = clientip.New(clientip.HeaderXRealIP)
		d.probes = ratelimiter.NewFailureGuard(bucket, func(r *http.Request) string {
			return clientip.FromContext(r.Context())
		})
	})

	prober := http.Header{"X-Real-Ip": {"198.51.100.20"}}
	assert.Equal(t, http.StatusNotFound, g.do(http.MethodGet, "http://a.unknown.example/api/whoami", prober).Code)
	assert.Equal(t, http.StatusNotFound, g.do(http.MethodGet, "http://b.unknown.example/api/whoami", prober).Code)

	// The budget is spent, so even a valid domain is refused for this client.
	rec := g.do(http.MethodGet, "http://acme.example.com/api/whoami", prober)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Successful resolutions never spend the budget.
	other := http.Header{"X-Real-Ip": {"198.51.100.21"}}
	for range 3 {
		assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "http://acme.example.com/api/whoami", other).Code)
	}
}

func TestRouter_ViolationCarriesClientIP(t *testing.T) {
	t.Parallel()

	g := newGateway(t, nil, func(d *routerDeps) {
		d.clientIP = clientip.New(clientip.HeaderXForwardedFor)
	})

	target := "http://acme.example.com/api/tenants/" + g.globex.ID.String() + "/orders"
	rec := g.do(http.MethodGet, target, http.Header{"X-Forwarded-For": {"203.0.113.50, 10.0.0.1"}})
	require.Equal(t, http.StatusForbidden, rec.Code)

	recent := g.monitor.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "203.0.113.50", recent[0].ClientIP)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), recent[0].RequestID)
}
