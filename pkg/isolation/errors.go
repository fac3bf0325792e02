package isolation

import "errors"

var (
	// ErrCrossTenantAccess is returned when an operation references a tenant
	// other than the one the request was resolved to.
	ErrCrossTenantAccess = errors.New("cross-tenant access denied")

	// ErrUnresolvedContext is returned when an operation arrives without a
	// tenant-scoped or super-admin resolution.
	ErrUnresolvedContext = errors.New("operation without resolved tenant context")

	// ErrSinkClosed is returned when writing to a closed AsyncSink.
	ErrSinkClosed = errors.New("violation sink is closed")
)
