package trustedorigin

import "errors"

var (
	// ErrRegistryClosed is returned by operations on a closed registry.
	ErrRegistryClosed = errors.New("trusted origin registry is closed")

	// ErrRegistryStarted is returned when Start is called more than once.
	ErrRegistryStarted = errors.New("trusted origin registry is already started")

	// ErrRefreshFailed is returned when the tenant store could not be listed.
	// The registry keeps serving its previous or emergency snapshot.
	ErrRefreshFailed = errors.New("trusted origin refresh failed")
)
