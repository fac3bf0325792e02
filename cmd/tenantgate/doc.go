// Command tenantgate resolves every request to a tenant by its domain,
// answers CORS preflights from the trusted origin registry, and enforces row
// level isolation on tenant API calls before forwarding them upstream.
//
// Configuration comes from the environment (see Config). Super-admin domains
// reach the /admin endpoints for cache invalidation, origin refreshes and
// isolation violation inspection. Clients that keep requesting unknown
// domains are throttled per IP before resolution runs.
package main
