// Package cache provides a generic, thread-safe cache with a fixed
// time-to-live and a hard capacity limit.
//
// Entries are evicted in insertion order: once the cache is full, adding a new
// key drops the single entry with the oldest insertion time. Reads never
// reorder entries, which keeps Get cheap and the eviction policy predictable.
// Expired entries are treated as misses and removed lazily on Get, or in bulk
// with PurgeExpired.
//
// # Usage
//
//	c := cache.NewTTLCache[string, *tenant.Tenant](100, 5*time.Minute)
//
//	c.Put("acme.example.com", t)
//
//	if entry, ok := c.Get("acme.example.com"); ok {
//		_ = entry.Value
//		_ = entry.InsertedAt
//	}
//
//	c.Remove("acme.example.com")
//	c.Clear()
//
// # Time
//
// The cache reads time from a github.com/benbjohnson/clock Clock. Tests can
// inject a mock clock with WithClock and advance it to expire entries without
// sleeping:
//
//	mock := clock.NewMock()
//	c := cache.NewTTLCache[string, int](10, time.Minute, cache.WithClock(mock))
//	c.Put("a", 1)
//	mock.Add(time.Minute)
//	_, ok := c.Get("a") // false
//
// # Eviction callbacks
//
// SetEvictCallback registers a function invoked for every entry that leaves
// the cache together with the EvictReason (expired, capacity or removed).
// The callback runs while the cache lock is held.
package cache
