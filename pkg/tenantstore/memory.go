package tenantstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

// Memory is an in-process tenant store. It keeps a domain index so that
// lookups are a single map access, and it hands out copies so callers
// can never mutate stored tenants.
type Memory struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenant.Tenant
	domains map[string]uuid.UUID
	now     func() time.Time
}

// NewMemory creates an empty store, optionally pre-populated with tenants.
func NewMemory(tenants ...*tenant.Tenant) (*Memory, error) {
	m := &Memory{
		tenants: make(map[uuid.UUID]*tenant.Tenant),
		domains: make(map[string]uuid.UUID),
		now:     time.Now,
	}
	for _, t := range tenants {
		if _, err := m.Add(context.Background(), t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add stores a new tenant and returns the normalized copy that was stored.
// It fails with ErrDomainTaken when any of the tenant's domains is owned by another tenant.
func (m *Memory) Add(_ context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	c, err := prepare(t, m.now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tenants[c.ID]; exists {
		return nil, fmt.Errorf("%w: tenant %s already exists", ErrInvalidTenant, c.ID)
	}
	if err := m.checkDomains(c, uuid.Nil); err != nil {
		return nil, err
	}

	m.index(c)
	return c.Clone(), nil
}

// Update replaces a stored tenant. Domains released by the update become available to other tenants.
func (m *Memory) Update(_ context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	c, err := prepare(t, m.now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.tenants[c.ID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	if err := m.checkDomains(c, c.ID); err != nil {
		return nil, err
	}
	if t.CreatedAt.IsZero() {
		c.CreatedAt = old.CreatedAt
	}

	m.unindex(old)
	m.index(c)
	return c.Clone(), nil
}

// Remove deletes the tenant with the given ID and releases its domains.
func (m *Memory) Remove(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.tenants[id]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	m.unindex(old)
	return nil
}

// FindByDomain implements tenant.Store.
func (m *Memory) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.domains[tenant.NormalizeDomain(domain)]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return m.tenants[id].Clone(), nil
}

// ListServable implements tenant.Lister. Tenants are ordered by creation time.
func (m *Memory) ListServable(ctx context.Context) ([]*tenant.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	list := make([]*tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		if t.Status.Servable() {
			list = append(list, t.Clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(list, func(a, b *tenant.Tenant) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.PrimaryDomain, b.PrimaryDomain)
	})
	return list, nil
}

// Len returns the number of stored tenants.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tenants)
}

// checkDomains must be called with the write lock held.
func (m *Memory) checkDomains(t *tenant.Tenant, self uuid.UUID) error {
	for _, d := range t.Domains() {
		if owner, ok := m.domains[d]; ok && owner != self {
			return fmt.Errorf("%w: %s", ErrDomainTaken, d)
		}
	}
	return nil
}

func (m *Memory) index(t *tenant.Tenant) {
	m.tenants[t.ID] = t
	for _, d := range t.Domains() {
		m.domains[d] = t.ID
	}
}

func (m *Memory) unindex(t *tenant.Tenant) {
	delete(m.tenants, t.ID)
	for _, d := range t.Domains() {
		if m.domains[d] == t.ID {
			delete(m.domains, d)
		}
	}
}
