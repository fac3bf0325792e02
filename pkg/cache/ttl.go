package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// EvictReason tells an eviction callback why an entry left the cache.
type EvictReason int

const (
	// EvictExpired means the entry outlived the cache TTL.
	EvictExpired EvictReason = iota
	// EvictCapacity means the entry was the oldest when the cache was full.
	EvictCapacity
	// EvictRemoved means the entry was removed explicitly or by Clear.
	EvictRemoved
)

func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictCapacity:
		return "capacity"
	default:
		return "removed"
	}
}

// Entry is a cached value together with the moment it was inserted.
type Entry[K comparable, V any] struct {
	Key        K
	Value      V
	InsertedAt time.Time
}

// TTLCache is a thread-safe cache with a fixed time-to-live and
// insertion-order eviction. Reads never reorder entries: when the cache is
// full the entry with the oldest insertion time is dropped, regardless of how
// often it was read.
type TTLCache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	clock    clock.Clock
	items    map[K]*list.Element
	order    *list.List // front is the oldest insertion
	mu       sync.Mutex
	onEvict  func(key K, value V, reason EvictReason)
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// NewTTLCache creates a cache holding at most capacity entries, each valid for ttl.
// Capacity and ttl must be positive, otherwise it panics.
func NewTTLCache[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *TTLCache[K, V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	if ttl <= 0 {
		panic("cache: ttl must be positive")
	}

	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	return &TTLCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clock:    o.clock,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// SetEvictCallback registers fn to be called for every entry leaving the cache.
// The callback runs with the cache lock held and must not call back into the cache.
func (c *TTLCache[K, V]) SetEvictCallback(fn func(key K, value V, reason EvictReason)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the entry for key if it exists and has not expired.
// Expired entries are removed on the way out.
func (c *TTLCache[K, V]) Get(key K) (Entry[K, V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Entry[K, V]{}, false
	}

	entry := elem.Value.(*Entry[K, V])
	if c.expired(entry, c.clock.Now()) {
		c.removeElement(elem, EvictExpired)
		return Entry[K, V]{}, false
	}

	return *entry, true
}

// Put inserts or replaces the value for key and stamps it with the current time.
// Replacing a key moves it to the young end of the eviction order.
// It reports whether another entry had to be evicted to make room.
func (c *TTLCache[K, V]) Put(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*Entry[K, V])
		entry.Value = value
		entry.InsertedAt = now
		c.order.MoveToBack(elem)
		return false
	}

	evicted := false
	for c.order.Len() >= c.capacity {
		c.removeElement(c.order.Front(), EvictCapacity)
		evicted = true
	}

	c.items[key] = c.order.PushBack(&Entry[K, V]{Key: key, Value: value, InsertedAt: now})
	return evicted
}

// Remove deletes key from the cache and reports whether it was present.
func (c *TTLCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem, EvictRemoved)
	return true
}

// RemoveFunc deletes every entry for which match returns true and returns how many were removed.
func (c *TTLCache[K, V]) RemoveFunc(match func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*Entry[K, V])
		if match(entry.Key, entry.Value) {
			c.removeElement(elem, EvictRemoved)
			removed++
		}
		elem = next
	}
	return removed
}

// PurgeExpired drops all expired entries and returns how many were dropped.
// Insertion order matches age, so the scan stops at the first live entry.
func (c *TTLCache[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	purged := 0
	for elem := c.order.Front(); elem != nil; elem = c.order.Front() {
		if !c.expired(elem.Value.(*Entry[K, V]), now) {
			break
		}
		c.removeElement(elem, EvictExpired)
		purged++
	}
	return purged
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured maximum number of entries.
func (c *TTLCache[K, V]) Capacity() int {
	return c.capacity
}

// TTL returns the configured time-to-live.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Clear removes all entries, calling the eviction callback for each of them.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvict != nil {
		for elem := c.order.Front(); elem != nil; elem = elem.Next() {
			entry := elem.Value.(*Entry[K, V])
			c.onEvict(entry.Key, entry.Value, EvictRemoved)
		}
	}

	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

// Must be called with lock held.
func (c *TTLCache[K, V]) expired(entry *Entry[K, V], now time.Time) bool {
	return now.Sub(entry.InsertedAt) >= c.ttl
}

// Must be called with lock held.
func (c *TTLCache[K, V]) removeElement(elem *list.Element, reason EvictReason) {
	c.order.Remove(elem)
	entry := elem.Value.(*Entry[K, V])
	delete(c.items, entry.Key)

	if c.onEvict != nil {
		c.onEvict(entry.Key, entry.Value, reason)
	}
}
