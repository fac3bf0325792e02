// Package pg connects to PostgreSQL through a pgx pool and applies the goose
// migrations for the tenants and isolation_violations tables.
//
//	pool, err := pg.Connect(ctx, cfg.Postgres, log)
//	if err != nil { ... }
//	if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil { ... }
//	store := tenantstore.NewPostgres(pool)
package pg
