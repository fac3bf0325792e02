package tenant_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

// mockStore is a testify mock of tenant.Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}

func newTestTenant(name, primary string, status tenant.Status, custom ...string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:            uuid.New(),
		Name:          name,
		PrimaryDomain: primary,
		CustomDomains: custom,
		Status:        status,
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func acmeTenant() *tenant.Tenant {
	return newTestTenant("Acme", "acme.example.com", tenant.StatusActive)
}

func globexTenant() *tenant.Tenant {
	return newTestTenant("Globex", "globex.example.com", tenant.StatusTrial, "shop.globex.io")
}

func initechTenant() *tenant.Tenant {
	return newTestTenant("Initech", "initech.biz", tenant.StatusSuspended)
}
