package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantgate/pkg/ratelimiter"
)

func newBucket(t *testing.T, cfg ratelimiter.Config) (*ratelimiter.Bucket, *ratelimiter.MemoryStore, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clk), ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)

	b, err := ratelimiter.NewBucket(store, cfg)
	require.NoError(t, err)
	return b, store, clk
}

func TestNewBucket_InvalidConfig(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)

	for name, cfg := range map[string]ratelimiter.Config{
		"zero capacity": {Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		"zero rate":     {Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		"zero interval": {Capacity: 1, RefillRate: 1},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ratelimiter.NewBucket(store, cfg)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}

	_, err := ratelimiter.NewBucket(nil, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestBucket_AllowUntilEmpty(t *testing.T) {
	t.Parallel()

	b, _, clk := newBucket(t, ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute})
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, -1, res.Remaining)
	assert.Equal(t, clk.Now().Add(time.Minute), res.ResetAt)
	assert.Equal(t, time.Minute, res.RetryAfter(clk.Now()))

	// A rejected call does not spend tokens.
	status, err := b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)
	assert.True(t, status.Exhausted())

	// Other keys are independent.
	other, err := b.Allow(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 2, other.Remaining)
}

func TestBucket_Refill(t *testing.T) {
	t.Parallel()

	b, _, clk := newBucket(t, ratelimiter.Config{Capacity: 4, RefillRate: 2, RefillInterval: time.Minute})
	ctx := context.Background()

	_, err := b.AllowN(ctx, "k", 4)
	require.NoError(t, err)

	clk.Add(90 * time.Second)
	res, err := b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)

	// The half interval already elapsed counts toward the next refill.
	clk.Add(30 * time.Second)
	res, err = b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Remaining)

	// Refill never exceeds capacity, even after a long idle period.
	clk.Add(24 * time.Hour)
	res, err = b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, time.Duration(0), res.RetryAfter(clk.Now().Add(2*time.Minute)))
}

func TestBucket_AllowNInvalid(t *testing.T) {
	t.Parallel()

	b, _, _ := newBucket(t, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})
	_, err := b.AllowN(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestBucket_Reset(t *testing.T) {
	t.Parallel()

	b, store, _ := newBucket(t, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	_, err := b.AllowN(ctx, "k", 2)
	require.NoError(t, err)
	require.NoError(t, b.Reset(ctx, "k"))
	assert.Equal(t, 0, store.Len())

	res, err := b.Status(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryStore_RemoveStale(t *testing.T) {
	t.Parallel()

	b, store, clk := newBucket(t, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Second})
	ctx := context.Background()

	_, err := b.Allow(ctx, "old")
	require.NoError(t, err)
	clk.Add(2 * time.Hour)
	_, err = b.Allow(ctx, "fresh")
	require.NoError(t, err)

	store.RemoveStale()
	assert.Equal(t, 1, store.Len())
}

func TestBucket_Concurrent(t *testing.T) {
	t.Parallel()

	b, _, _ := newBucket(t, ratelimiter.Config{Capacity: 50, RefillRate: 1, RefillInterval: time.Hour})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Allow(ctx, "k")
			if err == nil && res.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}
