package ratelimiter

import "errors"

var (
	// ErrInvalidConfig indicates that the bucket configuration is unusable.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidTokenCount indicates a non-positive token count.
	ErrInvalidTokenCount = errors.New("invalid token count")

	// ErrStoreUnavailable wraps failures of the state backend.
	ErrStoreUnavailable = errors.New("store unavailable")
)
