package tenant_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

func newTestCache(t *testing.T, clk clock.Clock, opts ...tenant.CacheOption) *tenant.MemoryCache {
	t.Helper()

	opts = append([]tenant.CacheOption{
		tenant.WithCacheClock(clk),
		tenant.WithCacheTTL(time.Minute),
		tenant.WithPurgeInterval(0),
	}, opts...)
	c := tenant.NewMemoryCache(opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_GetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.NewMock()
	c := newTestCache(t, clk)

	_, ok := c.Get(ctx, "acme.example.com")
	assert.False(t, ok)

	acme := acmeTenant()
	c.Set(ctx, "acme.example.com", acme)

	entry, ok := c.Get(ctx, "acme.example.com")
	require.True(t, ok)
	assert.Equal(t, "acme.example.com", entry.Key)
	assert.Equal(t, acme.ID, entry.Tenant.ID)
	assert.Equal(t, clk.Now(), entry.InsertedAt)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, tenant.DefaultCacheSize, stats.Capacity)
	assert.Equal(t, time.Minute, stats.TTL)
}

func TestMemoryCache_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, clock.NewMock())

	acme := acmeTenant()
	c.Set(ctx, "acme.example.com", acme)
	acme.Status = tenant.StatusSuspended
	acme.Name = "Renamed"

	entry, ok := c.Get(ctx, "acme.example.com")
	require.True(t, ok)
	assert.Equal(t, tenant.StatusActive, entry.Tenant.Status)
	assert.Equal(t, "Acme", entry.Tenant.Name)
}

func TestMemoryCache_IgnoresInvalidSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, clock.NewMock())

	c.Set(ctx, "", acmeTenant())
	c.Set(ctx, "acme.example.com", nil)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.NewMock()
	c := newTestCache(t, clk)

	c.Set(ctx, "acme.example.com", acmeTenant())

	clk.Add(59 * time.Second)
	_, ok := c.Get(ctx, "acme.example.com")
	assert.True(t, ok, "entry must be served before the TTL elapses")

	clk.Add(time.Second)
	_, ok = c.Get(ctx, "acme.example.com")
	assert.False(t, ok, "entry must expire once the TTL elapsed")
	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestMemoryCache_SetRefreshesInsertion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.NewMock()
	c := newTestCache(t, clk)

	c.Set(ctx, "acme.example.com", acmeTenant())
	clk.Add(40 * time.Second)
	c.Set(ctx, "acme.example.com", acmeTenant())
	clk.Add(40 * time.Second)

	entry, ok := c.Get(ctx, "acme.example.com")
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(-40*time.Second), entry.InsertedAt)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.NewMock()
	const size = 3
	c := newTestCache(t, clk, tenant.WithCacheSize(size))

	for i := range size + 1 {
		c.Set(ctx, fmt.Sprintf("t%d.example.com", i), newTestTenant(fmt.Sprintf("T%d", i), fmt.Sprintf("t%d.example.com", i), tenant.StatusActive))
		clk.Add(time.Second)
	}

	assert.Equal(t, size, c.Len())
	_, ok := c.Get(ctx, "t0.example.com")
	assert.False(t, ok, "oldest entry must be evicted")
	for i := 1; i <= size; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("t%d.example.com", i))
		assert.True(t, ok)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestMemoryCache_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, clock.NewMock())

	globex := globexTenant()
	acme := acmeTenant()
	c.Set(ctx, "globex.example.com", globex)
	c.Set(ctx, "shop.globex.io", globex)
	c.Set(ctx, "acme.example.com", acme)

	c.Delete(ctx, "acme.example.com")
	_, ok := c.Get(ctx, "acme.example.com")
	assert.False(t, ok)

	assert.Equal(t, 2, c.DeleteTenant(ctx, globex.ID))
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Evictions, "explicit removals are not evictions")

	c.Set(ctx, "acme.example.com", acme)
	c.Clear(ctx)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_BackgroundPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.NewMock()
	c := tenant.NewMemoryCache(
		tenant.WithCacheClock(clk),
		tenant.WithCacheTTL(time.Minute),
		tenant.WithPurgeInterval(30*time.Second),
	)
	defer c.Close()

	c.Set(ctx, "acme.example.com", acmeTenant())
	require.Equal(t, 1, c.Len())

	// The purge goroutine may register its ticker after the first Add, so keep advancing.
	assert.Eventually(t, func() bool {
		clk.Add(30 * time.Second)
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	c := tenant.NewMemoryCache(tenant.WithCacheClock(clock.NewMock()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	const size = 10
	c := newTestCache(t, clock.NewMock(), tenant.WithCacheSize(size))

	var wg sync.WaitGroup
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				domain := fmt.Sprintf("t%d.example.com", (g*200+i)%50)
				if i%3 == 0 {
					c.Set(ctx, domain, newTestTenant("T", domain, tenant.StatusActive))
				} else {
					c.Get(ctx, domain)
				}
				assert.LessOrEqual(t, c.Len(), size)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), size)
}

func TestMemoryCache_ConcurrentSetsStayWithinCapacity(t *testing.T) {
	t.Parallel()

	var logs lockedBuffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	const size = 10
	c := newTestCache(t, clock.NewMock(), tenant.WithCacheSize(size), tenant.WithCacheLogger(log))

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				domain := fmt.Sprintf("g%d-%d.example.com", g, i)
				c.Set(ctx, domain, newTestTenant("T", domain, tenant.StatusActive))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, size, c.Len())
	assert.NotContains(t, logs.String(), tenant.ErrCacheInvariant.Error())
	assert.NotContains(t, logs.String(), "level=ERROR")
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNoOpCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var c tenant.Cache = tenant.NoOpCache{}

	c.Set(ctx, "acme.example.com", acmeTenant())
	_, ok := c.Get(ctx, "acme.example.com")
	assert.False(t, ok)

	c.Delete(ctx, "acme.example.com")
	c.Clear(ctx)
}
