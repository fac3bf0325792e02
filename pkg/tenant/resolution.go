package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Source records how a resolution was produced.
type Source string

const (
	SourceSuperAdmin Source = "super_admin"
	SourceCache      Source = "cache"
	SourceStore      Source = "store"
)

// ResolutionContext is the outcome of resolving a request to a tenant.
// It is created once per request and passed by value, so holders cannot
// change what other holders see.
type ResolutionContext struct {
	TenantID      uuid.UUID
	TenantName    string
	IsSuperAdmin  bool
	MatchedDomain string
	MatchType     MatchType
	Source        Source
	ResolvedAt    time.Time
}

// HasTenant reports whether the resolution is scoped to a tenant.
func (rc ResolutionContext) HasTenant() bool {
	return rc.TenantID != uuid.Nil
}

// Scoped reports whether the resolution may run tenant-scoped work:
// either it carries a tenant or it belongs to a super-admin.
func (rc ResolutionContext) Scoped() bool {
	return rc.IsSuperAdmin || rc.HasTenant()
}

func superAdminContext(domain string, now time.Time) ResolutionContext {
	return ResolutionContext{
		IsSuperAdmin:  true,
		MatchedDomain: domain,
		MatchType:     MatchSuperAdmin,
		Source:        SourceSuperAdmin,
		ResolvedAt:    now,
	}
}

func tenantContext(t *Tenant, domain string, match MatchType, source Source, now time.Time) ResolutionContext {
	return ResolutionContext{
		TenantID:      t.ID,
		TenantName:    t.Name,
		MatchedDomain: domain,
		MatchType:     match,
		Source:        source,
		ResolvedAt:    now,
	}
}
