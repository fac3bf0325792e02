package tenant

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantgate/pkg/cache"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

const (
	// DefaultCacheTTL bounds how stale a cached tenant snapshot may get.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheSize is the default maximum number of cached domains.
	DefaultCacheSize = 100
)

// CacheEntry is a tenant snapshot cached under a domain.
// The snapshot is shared between readers and must be treated as read-only.
type CacheEntry struct {
	Key        string
	Tenant     *Tenant
	InsertedAt time.Time
}

// Cache is the interface for resolution cache implementations.
// Implementations must be safe for concurrent use, and Set must be idempotent per key.
type Cache interface {
	// Get returns the entry for key, or false on a miss or an expired entry.
	Get(ctx context.Context, key string) (CacheEntry, bool)

	// Set stores a snapshot of t under key.
	Set(ctx context.Context, key string, t *Tenant)

	// Delete removes key from the cache.
	Delete(ctx context.Context, key string)

	// Clear removes every entry.
	Clear(ctx context.Context)
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Size      int           `json:"size"`
	Capacity  int           `json:"capacity"`
	TTL       time.Duration `json:"ttl"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	Evictions uint64        `json:"evictions"`
}

// MemoryCache is the default process-local resolution cache.
// It holds at most its configured size; when full, inserting a new domain
// evicts the domain inserted longest ago. Expired entries are dropped lazily
// on Get and periodically by a background purge.
type MemoryCache struct {
	entries       *cache.TTLCache[string, *Tenant]
	logger        *slog.Logger
	clock         clock.Clock
	purgeInterval time.Duration

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type cacheConfig struct {
	ttl           time.Duration
	size          int
	clock         clock.Clock
	logger        *slog.Logger
	purgeInterval time.Duration
}

// CacheOption configures a MemoryCache.
type CacheOption func(*cacheConfig)

// WithCacheTTL sets how long a snapshot stays valid. Non-positive values are ignored.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheSize sets the maximum number of cached domains. Non-positive values are ignored.
func WithCacheSize(size int) CacheOption {
	return func(c *cacheConfig) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithCacheClock replaces the wall clock, mostly for tests.
func WithCacheClock(clk clock.Clock) CacheOption {
	return func(c *cacheConfig) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithCacheLogger sets the logger used for eviction and invariant reports.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *cacheConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPurgeInterval sets how often expired entries are swept in the background.
// Zero disables the background purge; expiry then happens lazily on Get only.
func WithPurgeInterval(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if d >= 0 {
			c.purgeInterval = d
		}
	}
}

// NewMemoryCache creates a resolution cache and starts its background purge.
// Call Close to stop it.
func NewMemoryCache(opts ...CacheOption) *MemoryCache {
	cfg := &cacheConfig{
		ttl:           DefaultCacheTTL,
		size:          DefaultCacheSize,
		clock:         clock.New(),
		logger:        slog.Default(),
		purgeInterval: -1,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.purgeInterval < 0 {
		cfg.purgeInterval = cfg.ttl
	}

	c := &MemoryCache{
		entries:       cache.NewTTLCache[string, *Tenant](cfg.size, cfg.ttl, cache.WithClock(cfg.clock)),
		logger:        cfg.logger.With(logger.Component("tenant.cache")),
		clock:         cfg.clock,
		purgeInterval: cfg.purgeInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	c.entries.SetEvictCallback(func(key string, _ *Tenant, reason cache.EvictReason) {
		if reason == cache.EvictRemoved {
			return
		}
		c.evictions.Add(1)
		c.logger.Debug("tenant cache entry evicted", logger.Domain(key), slog.String("reason", reason.String()))
	})

	if c.purgeInterval > 0 {
		go c.purge()
	} else {
		close(c.done)
	}

	return c
}

// Get returns the cached snapshot for key.
func (c *MemoryCache) Get(_ context.Context, key string) (CacheEntry, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return CacheEntry{}, false
	}
	c.hits.Add(1)
	return CacheEntry{Key: entry.Key, Tenant: entry.Value, InsertedAt: entry.InsertedAt}, true
}

// Set stores a private snapshot of t, so later changes to t do not leak into the cache.
func (c *MemoryCache) Set(ctx context.Context, key string, t *Tenant) {
	if key == "" || t == nil {
		return
	}
	c.entries.Put(key, t.Clone())

	if size, capacity := c.entries.Len(), c.entries.Capacity(); size > capacity {
		c.logger.ErrorContext(ctx, "tenant cache exceeded its capacity",
			logger.Error(ErrCacheInvariant),
			slog.Int("size", size),
			slog.Int("capacity", capacity),
		)
	}
}

// Delete removes key from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.entries.Remove(key)
}

// DeleteTenant removes every domain cached for the tenant with the given ID.
// It returns the number of removed entries.
func (c *MemoryCache) DeleteTenant(_ context.Context, id uuid.UUID) int {
	return c.entries.RemoveFunc(func(_ string, t *Tenant) bool {
		return t.ID == id
	})
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) {
	c.entries.Clear()
}

// Len returns the number of cached domains.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Stats returns cache counters.
func (c *MemoryCache) Stats() CacheStats {
	return CacheStats{
		Size:      c.entries.Len(),
		Capacity:  c.entries.Capacity(),
		TTL:       c.entries.TTL(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Close stops the background purge and waits for it to finish. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
	return nil
}

func (c *MemoryCache) purge() {
	ticker := c.clock.Ticker(c.purgeInterval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			if n := c.entries.PurgeExpired(); n > 0 {
				c.logger.Debug("purged expired tenant cache entries", slog.Int("count", n))
			}
		case <-c.stop:
			return
		}
	}
}

// NoOpCache disables caching, useful for testing or when every request must hit the store.
type NoOpCache struct{}

func (NoOpCache) Get(context.Context, string) (CacheEntry, bool) {
	return CacheEntry{}, false
}

func (NoOpCache) Set(context.Context, string, *Tenant) {}

func (NoOpCache) Delete(context.Context, string) {}

func (NoOpCache) Clear(context.Context) {}
