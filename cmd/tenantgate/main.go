package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/tenantgate/pkg/clientip"
	"github.com/dmitrymomot/tenantgate/pkg/config"
	"github.com/dmitrymomot/tenantgate/pkg/environment"
	"github.com/dmitrymomot/tenantgate/pkg/httpserver"
	"github.com/dmitrymomot/tenantgate/pkg/isolation"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
	"github.com/dmitrymomot/tenantgate/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantgate/pkg/requestid"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
	"github.com/dmitrymomot/tenantgate/pkg/trustedorigin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg.Log, cfg.Env, cfg.AppName,
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			tenant.LoggerExtractor(),
			environment.LoggerExtractor(),
		),
	)
	if err != nil {
		return err
	}
	logger.SetAsDefault(log)

	policy, err := tenant.ParseStatusPolicy(cfg.StatusPolicy)
	if err != nil {
		return logStartupError(ctx, log, "config", err)
	}
	var upstream *url.URL
	if cfg.UpstreamURL != "" {
		if upstream, err = url.Parse(cfg.UpstreamURL); err != nil {
			return logStartupError(ctx, log, "config", err)
		}
	}

	be := newBackends(log)
	store, err := be.openStore(ctx, cfg)
	if err != nil {
		_ = be.close(context.WithoutCancel(ctx))
		return logStartupError(ctx, log, "tenant store", err)
	}
	writer, err := be.openViolationWriter(ctx, cfg)
	if err != nil {
		_ = be.close(context.WithoutCancel(ctx))
		return logStartupError(ctx, log, "violation sink", err)
	}
	probeBucket, err := be.openProbeBucket(ctx, cfg)
	if err != nil {
		_ = be.close(context.WithoutCancel(ctx))
		return logStartupError(ctx, log, "probe limiter", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	storeMetrics := tenant.NewStoreMetrics()
	resolverMetrics := tenant.NewResolverMetrics()
	registryMetrics := trustedorigin.NewMetrics()
	isolationMetrics := isolation.NewMetrics()
	guardMetrics := ratelimiter.NewMetrics()
	for _, cs := range [][]prometheus.Collector{
		storeMetrics.PrometheusCollectors(),
		resolverMetrics.PrometheusCollectors(),
		registryMetrics.PrometheusCollectors(),
		isolationMetrics.PrometheusCollectors(),
		guardMetrics.PrometheusCollectors(),
	} {
		reg.MustRegister(cs...)
	}

	instrumented := tenant.Instrument(store, tenant.LogInterceptor(log, 250*time.Millisecond), storeMetrics)

	cache := tenant.NewMemoryCache(
		tenant.WithCacheTTL(cfg.CacheTTL),
		tenant.WithCacheSize(cfg.CacheSize),
		tenant.WithCacheLogger(log),
	)
	resolver := tenant.NewResolver(instrumented,
		tenant.WithCache(cache),
		tenant.WithSuperAdminDomains(cfg.SuperAdminDomains...),
		tenant.WithSuperAdminPrefixes(cfg.SuperAdminPrefixes...),
		tenant.WithTrustedDomainHeaders(cfg.TrustedDomainHeaders...),
		tenant.WithLookupTimeout(cfg.LookupTimeout),
		tenant.WithStatusPolicy(policy),
		tenant.WithLogger(log),
		tenant.WithMetrics(resolverMetrics),
	)

	registry := trustedorigin.NewRegistry(store,
		trustedorigin.WithBaseOrigins(cfg.BaseOrigins...),
		trustedorigin.WithEmergencyOrigins(cfg.EmergencyOrigins...),
		trustedorigin.WithRefreshInterval(cfg.RefreshInterval),
		trustedorigin.WithDevelopmentMode(cfg.Env.IsDevelopment()),
		trustedorigin.WithLogger(log),
		trustedorigin.WithMetrics(registryMetrics),
	)
	if err := registry.Start(ctx); err != nil {
		return logStartupError(ctx, log, "trusted origins", err)
	}

	monitorOpts := []isolation.MonitorOption{
		isolation.WithBufferSize(cfg.IsolationBufferSize),
		isolation.WithMetrics(isolationMetrics),
		isolation.WithLogger(log),
	}
	var sink *isolation.AsyncSink
	if writer != nil {
		sink = isolation.NewAsyncSink(writer, isolation.AsyncOptions{Logger: log})
		monitorOpts = append(monitorOpts, isolation.WithSinks(sink))
	}
	monitor := isolation.NewMonitor(monitorOpts...)
	enforcer := isolation.NewEnforcer(monitor, isolation.WithEnforcerLogger(log))

	var probes *ratelimiter.FailureGuard
	if probeBucket != nil {
		probes = ratelimiter.NewFailureGuard(probeBucket,
			func(r *http.Request) string { return clientip.FromContext(r.Context()) },
			ratelimiter.WithGuardLogger(log),
			ratelimiter.WithGuardMetrics(guardMetrics),
		)
	}

	checks := be.checks
	checks["trusted_origins"] = func(context.Context) error {
		if s := registry.Snapshot(); s == nil || s.Source == trustedorigin.SourceEmergency {
			return errors.New("trusted origins running on emergency snapshot")
		}
		return nil
	}

	router := newRouter(routerDeps{
		env:      cfg.Env,
		log:      log,
		resolver: resolver,
		registry: registry,
		monitor:  monitor,
		enforcer: enforcer,
		clientIP: clientip.New(cfg.TrustedIPHeaders...),
		probes:   probes,
		gatherer: reg,
		checks:   checks,
		upstream: upstream,
	})

	hooks := []httpserver.Option{
		httpserver.WithLogger(log),
		httpserver.WithShutdownHook("trusted_origins", func(context.Context) error { return registry.Close() }),
		httpserver.WithShutdownHook("resolution_cache", func(context.Context) error { return cache.Close() }),
	}
	if sink != nil {
		hooks = append(hooks, httpserver.WithShutdownHook("violation_sink", sink.Close))
	}
	hooks = append(hooks, httpserver.WithShutdownHook("backends", be.close))

	return httpserver.NewFromConfig(cfg.HTTP, hooks...).Run(ctx, router)
}
