package trustedorigin_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

type stubLister struct {
	mu      sync.Mutex
	tenants []*tenant.Tenant
	err     error
	gate    chan struct{}
	calls   atomic.Int32
}

func (s *stubLister) ListServable(ctx context.Context) ([]*tenant.Tenant, error) {
	s.calls.Add(1)

	s.mu.Lock()
	gate, tenants, err := s.gate, s.tenants, s.err
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tenants, err
}

func (s *stubLister) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubLister) set(tenants ...*tenant.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = tenants
	s.err = nil
}

func newTenant(primary string, status tenant.Status, custom ...string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:            uuid.New(),
		PrimaryDomain: primary,
		CustomDomains: custom,
		Status:        status,
	}
}

func defaultTenants() []*tenant.Tenant {
	return []*tenant.Tenant{
		newTenant("acme.example.com", tenant.StatusActive),
		newTenant("globex.example.com", tenant.StatusTrial, "shop.globex.io"),
		newTenant("initech.biz", tenant.StatusSuspended),
	}
}
