package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type bucketState struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

// MemoryStore keeps buckets in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	clock   clock.Clock

	cleanupInterval time.Duration
	staleAfter      time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often idle buckets are dropped. Zero disables cleanup.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = d
	}
}

// WithStaleAfter sets how long a bucket may stay idle before cleanup drops it.
func WithStaleAfter(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) MemoryStoreOption {
	return func(s *MemoryStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewMemoryStore creates a store. Unless disabled, a goroutine drops idle
// buckets until Close is called.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		buckets:         make(map[string]*bucketState),
		clock:           clock.New(),
		cleanupInterval: 5 * time.Minute,
		staleAfter:      time.Hour,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanup()
	}
	return s
}

// ConsumeTokens implements Store.
func (s *MemoryStore) ConsumeTokens(_ context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucketState{tokens: cfg.Capacity, lastRefill: now}
		s.buckets[key] = b
	}
	b.lastAccess = now

	refill(b, cfg, now)

	remaining := b.tokens - tokens
	if remaining >= 0 {
		b.tokens = remaining
	}
	return remaining, b.lastRefill.Add(cfg.RefillInterval), nil
}

// refill credits whole elapsed intervals. The refill time advances by whole
// intervals so partial progress is not lost between calls.
func refill(b *bucketState, cfg Config, now time.Time) {
	intervals := int64(now.Sub(b.lastRefill) / cfg.RefillInterval)
	if intervals <= 0 {
		return
	}

	// Capped so large idle gaps cannot overflow the multiplication.
	maxIntervals := int64(cfg.Capacity/cfg.RefillRate + 1)
	b.tokens = min(b.tokens+int(min(intervals, maxIntervals))*cfg.RefillRate, cfg.Capacity)
	if b.tokens == cfg.Capacity {
		b.lastRefill = now
		return
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RemoveStale drops buckets idle for longer than the stale threshold.
func (s *MemoryStore) RemoveStale() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, b := range s.buckets {
		if now.Sub(b.lastAccess) > s.staleAfter {
			delete(s.buckets, key)
		}
	}
}

func (s *MemoryStore) cleanup() {
	ticker := s.clock.Ticker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RemoveStale()
		case <-s.stop:
			return
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}
