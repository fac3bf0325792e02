package tenant

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// ParseStatus converts a stored status value into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusTrial, StatusSuspended, StatusDeleted:
		return st, nil
	default:
		return "", fmt.Errorf("tenant: unknown status %q", s)
	}
}

// Servable reports whether requests may be served for a tenant in this state.
func (s Status) Servable() bool {
	return s == StatusActive || s == StatusTrial
}

// ServableStatuses lists the statuses stores filter on when listing tenants.
func ServableStatuses() []Status {
	return []Status{StatusActive, StatusTrial}
}

// MatchType describes how a request domain was matched.
type MatchType string

const (
	MatchNone       MatchType = ""
	MatchPrimary    MatchType = "primary"
	MatchCustom     MatchType = "custom"
	MatchSuperAdmin MatchType = "super_admin"
)

// Tenant is an organization served by the portal under its own domains.
// The primary domain and every custom domain are unique across all tenants.
type Tenant struct {
	ID            uuid.UUID `json:"id" yaml:"id" bson:"_id"`
	Name          string    `json:"name" yaml:"name" bson:"name"`
	PrimaryDomain string    `json:"primary_domain" yaml:"primary_domain" bson:"primary_domain"`
	CustomDomains []string  `json:"custom_domains,omitempty" yaml:"custom_domains" bson:"custom_domains"`
	Status        Status    `json:"status" yaml:"status" bson:"status"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at" bson:"created_at"`
}

// Match reports which of the tenant's domains equals domain.
// domain is expected in normalized form, see NormalizeDomain.
func (t *Tenant) Match(domain string) (MatchType, bool) {
	if domain == "" {
		return MatchNone, false
	}
	if NormalizeDomain(t.PrimaryDomain) == domain {
		return MatchPrimary, true
	}
	for _, d := range t.CustomDomains {
		if NormalizeDomain(d) == domain {
			return MatchCustom, true
		}
	}
	return MatchNone, false
}

// Domains returns the primary domain followed by the custom domains, normalized and without blanks.
func (t *Tenant) Domains() []string {
	domains := make([]string, 0, len(t.CustomDomains)+1)
	if d := NormalizeDomain(t.PrimaryDomain); d != "" {
		domains = append(domains, d)
	}
	for _, cd := range t.CustomDomains {
		if d := NormalizeDomain(cd); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// Clone returns a deep copy that shares no memory with t.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	c.CustomDomains = slices.Clone(t.CustomDomains)
	return &c
}

// Store is the read side of the tenant persistence layer.
type Store interface {
	// FindByDomain returns the tenant whose primary domain equals domain or whose
	// custom domains contain it, whatever its status. It returns ErrTenantNotFound
	// when no tenant owns the domain. Any other error is a store failure.
	FindByDomain(ctx context.Context, domain string) (*Tenant, error)
}

// Lister enumerates tenants that are currently servable (active or trial).
type Lister interface {
	ListServable(ctx context.Context) ([]*Tenant, error)
}

// StoreFunc is an adapter to allow the use of ordinary functions as a Store.
type StoreFunc func(ctx context.Context, domain string) (*Tenant, error)

// FindByDomain calls f(ctx, domain).
func (f StoreFunc) FindByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return f(ctx, domain)
}
