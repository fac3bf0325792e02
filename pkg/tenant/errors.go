package tenant

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound is returned when no tenant owns the requested domain.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantInactive is returned when the domain belongs to a suspended or deleted tenant.
	ErrTenantInactive = errors.New("tenant is inactive")

	// ErrStoreUnavailable is returned when the tenant store failed to answer.
	// It is never cached as a negative result.
	ErrStoreUnavailable = errors.New("tenant store unavailable")

	// ErrStoreTimeout is returned when the tenant store did not answer in time.
	// It matches ErrStoreUnavailable with errors.Is.
	ErrStoreTimeout = fmt.Errorf("%w: lookup timed out", ErrStoreUnavailable)

	// ErrMissingDomain is returned when the request carries no usable host.
	ErrMissingDomain = errors.New("no domain in request")

	// ErrCacheInvariant signals that the resolution cache broke its capacity bound.
	// It is logged, never returned to callers.
	ErrCacheInvariant = errors.New("resolution cache invariant violated")

	// ErrNoResolution is returned when the context carries no resolution.
	ErrNoResolution = errors.New("no tenant resolution in context")
)

// IsResolutionFailure reports whether err means the request has no tenant,
// as opposed to the tenant store being unavailable.
func IsResolutionFailure(err error) bool {
	return errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrTenantInactive) ||
		errors.Is(err, ErrMissingDomain)
}
