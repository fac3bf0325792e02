// Package tenantstore provides tenant.Store implementations.
//
// Three adapters are available:
//
//   - Memory keeps tenants in process and can be seeded from YAML with Seed or SeedFile.
//     It is meant for development, tests and small fixed deployments.
//   - Postgres reads the tenants table through a pgx connection pool. The schema lives
//     in db/migrations and is applied with pg.Migrate.
//   - Mongo reads the tenants collection. Call EnsureIndexes once at startup.
//
// Every adapter returns tenants of any status from FindByDomain and only
// active or trial tenants from ListServable. Domains are normalized with
// tenant.NormalizeDomain before they are stored, and Add rejects a tenant
// whose primary or custom domains are already owned by another tenant with
// ErrDomainTaken.
//
// Wrap any adapter with tenant.Instrument to log or measure lookups:
//
//	store, _ := tenantstore.NewMemory()
//	if _, err := tenantstore.SeedFile(ctx, store, "tenants.yaml"); err != nil {
//		return err
//	}
//	resolver := tenant.NewResolver(tenant.Instrument(store, tenant.LogInterceptor(log, 100*time.Millisecond)))
package tenantstore
