package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantgate/pkg/cache"
)

func TestTTLCache_Basic(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		t.Parallel()

		mock := clock.NewMock()
		c := cache.NewTTLCache[string, int](3, time.Minute, cache.WithClock(mock))

		c.Put("a", 1)
		c.Put("b", 2)

		entry, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, "a", entry.Key)
		assert.Equal(t, 1, entry.Value)
		assert.Equal(t, mock.Now(), entry.InsertedAt)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("get non-existent", func(t *testing.T) {
		t.Parallel()

		c := cache.NewTTLCache[string, int](3, time.Minute)

		entry, ok := c.Get("missing")
		assert.False(t, ok)
		assert.Zero(t, entry.Value)
	})

	t.Run("put existing key replaces value and refreshes timestamp", func(t *testing.T) {
		t.Parallel()

		mock := clock.NewMock()
		c := cache.NewTTLCache[string, int](3, time.Minute, cache.WithClock(mock))

		c.Put("a", 1)
		mock.Add(30 * time.Second)
		evicted := c.Put("a", 2)

		assert.False(t, evicted)
		entry, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 2, entry.Value)
		assert.Equal(t, mock.Now(), entry.InsertedAt)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("panics on invalid configuration", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { cache.NewTTLCache[string, int](0, time.Minute) })
		assert.Panics(t, func() { cache.NewTTLCache[string, int](1, 0) })
	})
}

func TestTTLCache_Expiry(t *testing.T) {
	t.Parallel()

	t.Run("expired entry is a miss and is removed", func(t *testing.T) {
		t.Parallel()

		mock := clock.NewMock()
		c := cache.NewTTLCache[string, int](3, time.Minute, cache.WithClock(mock))
		c.Put("a", 1)

		mock.Add(59 * time.Second)
		_, ok := c.Get("a")
		assert.True(t, ok)

		mock.Add(time.Second)
		_, ok = c.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("purge drops only expired entries", func(t *testing.T) {
		t.Parallel()

		mock := clock.NewMock()
		c := cache.NewTTLCache[string, int](5, time.Minute, cache.WithClock(mock))

		c.Put("old1", 1)
		c.Put("old2", 2)
		mock.Add(45 * time.Second)
		c.Put("young", 3)
		mock.Add(15 * time.Second)

		assert.Equal(t, 2, c.PurgeExpired())
		assert.Equal(t, 1, c.Len())
		_, ok := c.Get("young")
		assert.True(t, ok)
	})
}

func TestTTLCache_Eviction(t *testing.T) {
	t.Parallel()

	t.Run("evicts the oldest insertion when full", func(t *testing.T) {
		t.Parallel()

		c := cache.NewTTLCache[string, int](3, time.Minute)

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)
		evicted := c.Put("d", 4)

		assert.True(t, evicted)
		assert.Equal(t, 3, c.Len())
		_, ok := c.Get("a")
		assert.False(t, ok, "a should have been evicted")
		for _, key := range []string{"b", "c", "d"} {
			_, ok := c.Get(key)
			assert.True(t, ok, key)
		}
	})

	t.Run("reads do not protect an entry from eviction", func(t *testing.T) {
		t.Parallel()

		c := cache.NewTTLCache[string, int](2, time.Minute)

		c.Put("a", 1)
		c.Put("b", 2)
		_, _ = c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("a")
		assert.False(t, ok)
	})

	t.Run("capacity plus one keeps exactly capacity entries", func(t *testing.T) {
		t.Parallel()

		const size = 100
		c := cache.NewTTLCache[string, int](size, time.Minute)
		for i := range size + 1 {
			c.Put(fmt.Sprintf("key-%d", i), i)
		}

		assert.Equal(t, size, c.Len())
		_, ok := c.Get("key-0")
		assert.False(t, ok)
	})

	t.Run("callback receives reason", func(t *testing.T) {
		t.Parallel()

		mock := clock.NewMock()
		c := cache.NewTTLCache[string, int](1, time.Minute, cache.WithClock(mock))

		var reasons []cache.EvictReason
		c.SetEvictCallback(func(key string, value int, reason cache.EvictReason) {
			reasons = append(reasons, reason)
		})

		c.Put("a", 1)
		c.Put("b", 2)
		mock.Add(time.Minute)
		_, _ = c.Get("b")
		c.Put("c", 3)
		c.Remove("c")

		assert.Equal(t, []cache.EvictReason{cache.EvictCapacity, cache.EvictExpired, cache.EvictRemoved}, reasons)
	})
}

func TestTTLCache_RemoveFunc(t *testing.T) {
	t.Parallel()

	c := cache.NewTTLCache[string, int](5, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 1)

	removed := c.RemoveFunc(func(_ string, v int) bool { return v == 1 })

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_Clear(t *testing.T) {
	t.Parallel()

	c := cache.NewTTLCache[string, int](5, time.Minute)
	var evicted int
	c.SetEvictCallback(func(string, int, cache.EvictReason) { evicted++ })

	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 2, evicted)
}

func TestTTLCache_Concurrent(t *testing.T) {
	t.Parallel()

	const size = 50
	c := cache.NewTTLCache[int, int](size, time.Minute)

	var wg sync.WaitGroup
	for g := range 20 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 500 {
				key := (g*500 + i) % 200
				c.Put(key, i)
				_, _ = c.Get(key)
				if i%50 == 0 {
					c.Remove(key)
				}
				if i%200 == 0 {
					c.Clear()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), size)
}

func TestTTLCache_ConcurrentPutsNeverExceedCapacity(t *testing.T) {
	t.Parallel()

	const (
		size    = 25
		writers = 8
		perG    = 100
	)
	c := cache.NewTTLCache[string, int](size, time.Minute)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		evictions int
	)
	for g := range writers {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range perG {
				evicted := c.Put(fmt.Sprintf("g%d-k%d", g, i), i)
				assert.LessOrEqual(t, c.Len(), size)
				if evicted {
					mu.Lock()
					evictions++
					mu.Unlock()
				}
			}
		}(g)
	}
	wg.Wait()

	// Every distinct key beyond capacity evicted exactly one entry.
	assert.Equal(t, size, c.Len())
	assert.Equal(t, writers*perG-size, evictions)
}
