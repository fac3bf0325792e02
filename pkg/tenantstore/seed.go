package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

// seedFile is the YAML layout accepted by Seed:
//
//	tenants:
//	  - id: 5b7c...        # optional, generated when empty
//	    name: Acme
//	    primary_domain: acme.example.com
//	    custom_domains: [shop.acme.io]
//	    status: active
type seedFile struct {
	Tenants []seedTenant `yaml:"tenants"`
}

type seedTenant struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	PrimaryDomain string    `yaml:"primary_domain"`
	CustomDomains []string  `yaml:"custom_domains"`
	Status        string    `yaml:"status"`
	CreatedAt     time.Time `yaml:"created_at"`
}

// Adder is implemented by stores that accept new tenants.
type Adder interface {
	Add(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error)
}

// Seed decodes tenants from r and adds them to store in file order.
// It returns the number of tenants added.
func Seed(ctx context.Context, store Adder, r io.Reader) (int, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, errors.Join(ErrFailedToLoadSeed, err)
	}

	for i, st := range file.Tenants {
		t, err := st.tenant()
		if err != nil {
			return i, fmt.Errorf("%w: tenant #%d: %w", ErrFailedToLoadSeed, i+1, err)
		}
		if _, err := store.Add(ctx, t); err != nil {
			return i, fmt.Errorf("%w: tenant #%d (%s): %w", ErrFailedToLoadSeed, i+1, st.PrimaryDomain, err)
		}
	}
	return len(file.Tenants), nil
}

// SeedFile is Seed over the file at path.
func SeedFile(ctx context.Context, store Adder, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Join(ErrFailedToLoadSeed, err)
	}
	defer f.Close()

	return Seed(ctx, store, f)
}

func (st seedTenant) tenant() (*tenant.Tenant, error) {
	t := &tenant.Tenant{
		Name:          st.Name,
		PrimaryDomain: st.PrimaryDomain,
		CustomDomains: st.CustomDomains,
		Status:        tenant.Status(st.Status),
		CreatedAt:     st.CreatedAt,
	}
	if st.Status == "" {
		t.Status = tenant.StatusActive
	}
	if st.ID != "" {
		id, err := uuid.Parse(st.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTenant, err)
		}
		t.ID = id
	}
	return t, nil
}
