package tenantstore

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

// prepare validates t and returns a normalized copy ready to be persisted.
// Missing IDs and creation times are filled in.
func prepare(t *tenant.Tenant, now time.Time) (*tenant.Tenant, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tenant", ErrInvalidTenant)
	}

	c := t.Clone()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now.UTC()
	}

	status, err := tenant.ParseStatus(string(c.Status))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTenant, err)
	}
	c.Status = status

	c.PrimaryDomain = tenant.NormalizeDomain(c.PrimaryDomain)
	if c.PrimaryDomain == "" {
		return nil, fmt.Errorf("%w: primary domain %q is not a valid host", ErrInvalidTenant, t.PrimaryDomain)
	}

	custom := make([]string, 0, len(c.CustomDomains))
	for _, raw := range c.CustomDomains {
		d := tenant.NormalizeDomain(raw)
		if d == "" {
			return nil, fmt.Errorf("%w: custom domain %q is not a valid host", ErrInvalidTenant, raw)
		}
		if d == c.PrimaryDomain || slices.Contains(custom, d) {
			continue
		}
		custom = append(custom, d)
	}
	c.CustomDomains = custom

	return c, nil
}
