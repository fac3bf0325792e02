// Package tenant resolves inbound requests to the tenant that owns their
// domain and carries the result through the request context.
//
// A single deployment serves many tenants, each reachable through a primary
// domain and any number of custom domains. For every request the package
// determines which tenant (if any) owns it, cheaply and consistently, and
// fails closed when the tenant store cannot answer.
//
// # Architecture
//
// The package is built around four pieces:
//
// 1. Store - the narrow read port over the tenant persistence layer
// 2. Cache - a bounded, TTL-based domain to tenant snapshot cache
// 3. Resolver - orchestrates extraction, super-admin short-circuit, cache and store
// 4. Middleware - attaches the ResolutionContext and advisory headers to requests
//
// # Usage
//
//	import "github.com/dmitrymomot/tenantgate/pkg/tenant"
//
//	cache := tenant.NewMemoryCache(
//		tenant.WithCacheTTL(5*time.Minute),
//		tenant.WithCacheSize(100),
//	)
//	defer cache.Close()
//
//	resolver := tenant.NewResolver(store,
//		tenant.WithCache(cache),
//		tenant.WithSuperAdminDomains("admin.example.com", "localhost"),
//		tenant.WithLookupTimeout(2*time.Second),
//	)
//
//	router.Use(tenant.Middleware(resolver, tenant.WithSkipPaths("/health")))
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		rc, ok := tenant.FromContext(r.Context())
//		if !ok || !rc.HasTenant() {
//			return
//		}
//		// scope queries to rc.TenantID
//	}
//
// # Domain extraction
//
// The candidate domain is taken from X-Tenant-Domain, then X-Original-Host
// (reverse proxies), then Host. The resolver ignores the first two unless
// they are enabled with WithTrustedDomainHeaders, because a client could
// otherwise name a super-admin domain from any host. The port is stripped,
// the value lower-cased and internationalized names are converted to punycode.
//
// # Resolution
//
// Super-admin domains are checked first against a fixed set of exact domains
// and a short list of prefixes; they never reach the cache or the store. A
// cache hit within the TTL answers without a store call. On a miss the store
// is queried under a hard timeout: a timeout or connection error is reported
// as ErrStoreUnavailable (ErrStoreTimeout for timeouts) and is never cached,
// so the next request retries. Only servable tenants (active or trial) are
// cached; suspended or deleted tenants fail with ErrTenantInactive.
//
// # Caching
//
// MemoryCache holds at most its configured size. When full, inserting a new
// domain evicts the domain inserted longest ago. Entries older than the TTL
// are misses and are dropped lazily. Delete and Clear are safe to call while
// requests are being served, and are exposed on the Resolver as
// InvalidateDomain, InvalidateTenant and ClearCache.
//
// # Status freshness
//
// With StatusCached (the default) a tenant suspension becomes visible within
// one cache TTL. StatusLive re-reads the tenant on every cache hit instead and
// fails the request when the store cannot answer.
//
// # Error Handling
//
//   - ErrTenantNotFound: no tenant owns the domain
//   - ErrTenantInactive: the owning tenant is suspended or deleted
//   - ErrStoreUnavailable / ErrStoreTimeout: the store could not answer
//   - ErrMissingDomain: the request carried no usable host
//   - ErrNoResolution: a handler required a resolution that is not there
//
// DefaultErrorHandler answers with generic messages only, so responses do not
// reveal whether a domain exists.
//
// # Instrumentation
//
// Store lookups can be observed by wrapping the store with Instrument and a
// list of Interceptor values, such as LogInterceptor or StoreMetrics.
package tenant
