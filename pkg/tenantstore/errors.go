package tenantstore

import "errors"

var (
	// ErrDomainTaken is returned when a tenant claims a domain another tenant already owns.
	ErrDomainTaken = errors.New("domain is already owned by another tenant")

	// ErrInvalidTenant is returned for tenants without a usable primary domain or with an unknown status.
	ErrInvalidTenant = errors.New("invalid tenant")

	// ErrFailedToLoadSeed is returned when a seed file cannot be read or parsed.
	ErrFailedToLoadSeed = errors.New("failed to load tenant seed")
)
