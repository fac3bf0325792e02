// Package ratelimiter implements a token bucket limiter with in-memory and
// Redis backed state, and a FailureGuard that uses it to throttle clients
// which keep causing failures.
//
// The bucket refills RefillRate tokens every RefillInterval up to Capacity:
//
//	bucket, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
//		Capacity:       20,
//		RefillRate:     1,
//		RefillInterval: 3 * time.Second,
//	})
//
// The gateway charges a client IP for every request whose host resolves to
// no tenant, so enumerating domains cannot turn into a stream of store
// lookups:
//
//	guard := ratelimiter.NewFailureGuard(bucket, func(r *http.Request) string {
//		return clientip.FromContext(r.Context())
//	})
//	r.Use(guard.Middleware)
//	// in the resolution error handler
//	guard.Fail(r)
//
// Use RedisStore when several replicas should share one budget per client.
package ratelimiter
