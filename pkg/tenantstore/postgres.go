package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantgate/pkg/pg"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

const tenantColumns = `id, name, primary_domain, custom_domains, status, created_at`

// Postgres is a tenant store backed by the tenants table.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres creates a store over an open connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// FindByDomain implements tenant.Store. Status is not filtered here so the
// resolver can tell an inactive tenant from an unknown domain.
func (s *Postgres) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants
		 WHERE primary_domain = $1 OR $1 = ANY(custom_domains)
		 LIMIT 1`, domain)

	t, err := scanTenant(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("find tenant by domain %s: %w", domain, err)
	}
	return t, nil
}

// ListServable implements tenant.Lister.
func (s *Postgres) ListServable(ctx context.Context) ([]*tenant.Tenant, error) {
	statuses := make([]string, 0, 2)
	for _, st := range tenant.ServableStatuses() {
		statuses = append(statuses, string(st))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants
		 WHERE status = ANY($1)
		 ORDER BY created_at ASC`, statuses)
	if err != nil {
		return nil, fmt.Errorf("list servable tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Add inserts a tenant. Custom domains cannot carry a unique constraint,
// so ownership of every domain is checked inside the same transaction.
func (s *Postgres) Add(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	c, err := prepare(t, s.now())
	if err != nil {
		return nil, err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serializes concurrent Adds so the ownership check below cannot race.
		if _, err := tx.Exec(ctx, `LOCK TABLE tenants IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}

		var taken bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (
			   SELECT 1 FROM tenants
			   WHERE primary_domain = ANY($1) OR custom_domains && $1
			 )`, c.Domains(),
		).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return ErrDomainTaken
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO tenants (`+tenantColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.Name, c.PrimaryDomain, c.CustomDomains, string(c.Status), c.CreatedAt)
		return err
	})
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, ErrDomainTaken), pg.IsDuplicateKeyError(err):
		return nil, fmt.Errorf("add tenant %s: %w", c.PrimaryDomain, ErrDomainTaken)
	default:
		return nil, fmt.Errorf("add tenant %s: %w", c.PrimaryDomain, err)
	}
}

// SetStatus changes the lifecycle state of a tenant.
func (s *Postgres) SetStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set tenant %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set tenant %s status: %w", id, tenant.ErrTenantNotFound)
	}
	return nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t      tenant.Tenant
		status string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.PrimaryDomain, &t.CustomDomains, &status, &t.CreatedAt); err != nil {
		return nil, err
	}

	st, err := tenant.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("scan tenant %s: %w", t.ID, err)
	}
	t.Status = st
	return &t, nil
}
