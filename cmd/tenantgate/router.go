package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/tenantgate/pkg/clientip"
	"github.com/dmitrymomot/tenantgate/pkg/environment"
	"github.com/dmitrymomot/tenantgate/pkg/httpserver"
	"github.com/dmitrymomot/tenantgate/pkg/isolation"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
	"github.com/dmitrymomot/tenantgate/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantgate/pkg/requestid"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
	"github.com/dmitrymomot/tenantgate/pkg/trustedorigin"
)

const tenantIDParam = "tenantID"

type routerDeps struct {
	env      environment.Environment
	log      *slog.Logger
	resolver *tenant.Resolver
	registry *trustedorigin.Registry
	monitor  *isolation.Monitor
	enforcer *isolation.Enforcer
	clientIP *clientip.Extractor
	probes   *ratelimiter.FailureGuard
	gatherer prometheus.Gatherer
	checks   map[string]httpserver.Check
	upstream *url.URL
}

// newRouter builds the request pipeline: request ID, client IP, CORS,
// tenant resolution, then either the super-admin surface or the tenant API
// guarded by the isolation enforcer. Health and metrics endpoints skip
// resolution. Clients that keep hitting unknown domains are throttled before
// resolution when probes is set.
func newRouter(d routerDeps) http.Handler {
	if d.clientIP == nil {
		d.clientIP = clientip.New()
	}

	resolutionErrors := tenant.DefaultErrorHandler
	if d.probes != nil {
		resolutionErrors = func(w http.ResponseWriter, r *http.Request, err error) {
			if tenant.IsResolutionFailure(err) {
				d.probes.Fail(r)
			}
			tenant.DefaultErrorHandler(w, r, err)
		}
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		d.clientIP.Middleware,
		environment.Middleware(d.env),
		middleware.Recoverer,
		trustedorigin.CORS(d.registry, trustedorigin.WithAllowCredentials(true)),
	)
	if d.probes != nil {
		r.Use(d.probes.Middleware)
	}
	r.Use(tenant.Middleware(d.resolver,
		tenant.WithSkipPaths("/health/", "/metrics"),
		tenant.WithErrorHandler(resolutionErrors),
	))

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(d.log, 3*time.Second, d.checks))
	r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))

	a := &admin{resolver: d.resolver, registry: d.registry, monitor: d.monitor, log: d.log}
	r.Route("/admin", func(r chi.Router) {
		r.Use(tenant.RequireSuperAdmin(nil))

		r.Delete("/cache", a.clearCache)
		r.Delete("/cache/{domain}", a.invalidateDomain)
		r.Get("/origins", a.origins)
		r.Post("/origins/refresh", a.refreshOrigins)
		r.Get("/isolation/stats", a.isolationStats)
		r.Get("/isolation/violations", a.recentViolations)
		r.Delete("/isolation/violations", a.clearViolations)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(tenant.RequireTenant(true, nil))

		r.Get("/whoami", whoami)

		upstream := upstreamHandler(d.upstream, d.log)
		r.With(isolation.Guard(d.enforcer, isolation.QueryReference("tenant_id"))).Handle("/*", upstream)
		r.Route("/tenants/{"+tenantIDParam+"}", func(r chi.Router) {
			r.Use(isolation.Guard(d.enforcer, isolation.FirstReference(
				isolation.PathReference(func(r *http.Request) string { return chi.URLParam(r, tenantIDParam) }),
				isolation.QueryReference("tenant_id"),
			)))
			r.Handle("/*", upstream)
			r.Handle("/", upstream)
		})
	})

	return r
}

type whoamiResponse struct {
	TenantID      string    `json:"tenant_id"`
	TenantName    string    `json:"tenant_name"`
	MatchedDomain string    `json:"matched_domain"`
	MatchType     string    `json:"match_type"`
	Source        string    `json:"source"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

func whoami(w http.ResponseWriter, r *http.Request) {
	rc := tenant.MustFromContext(r.Context())
	respondJSON(w, http.StatusOK, whoamiResponse{
		TenantID:      rc.TenantID.String(),
		TenantName:    rc.TenantName,
		MatchedDomain: rc.MatchedDomain,
		MatchType:     string(rc.MatchType),
		Source:        string(rc.Source),
		ResolvedAt:    rc.ResolvedAt,
	})
}

// upstreamHandler forwards tenant requests to target with the resolved
// tenant in trusted headers. Client supplied copies of those headers are
// replaced. Without a target it answers 404.
func upstreamHandler(target *url.URL, log *slog.Logger) http.Handler {
	if target == nil {
		return http.NotFoundHandler()
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			rc := tenant.MustFromContext(pr.In.Context())
			pr.Out.Header.Set(tenant.HeaderTenantID, rc.TenantID.String())
			pr.Out.Header.Set(tenant.HeaderTenantName, rc.TenantName)
			pr.Out.Header.Set(requestid.Header, requestid.FromContext(pr.In.Context()))
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.ErrorContext(r.Context(), "upstream request failed", logger.Error(err))
			http.Error(w, "service unavailable", http.StatusBadGateway)
		},
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
