// Package session holds short-lived per-session state in a bounded TTL
// cache, so abandoned sessions age out instead of accumulating.
package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long an entry stays fresh after its last write
	DefaultTTL = 30 * time.Minute

	// DefaultMaxEntries bounds the cache; the least recently used entry is
	// evicted when a write would exceed it
	DefaultMaxEntries = 10
)

// entry pairs a value with its write-time deadline. Keeping the deadline
// inside the LRU value means eviction and deletion are the same step.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a bounded TTL cache for per-session state. Expiry is lazy: an
// entry past its deadline is reported absent on read but only reclaimed by
// eviction pressure or an explicit Sweep.
//
// Every exported method is one critical section, so multi-step operations
// like Swap cannot interleave with concurrent mutations.
type Cache[V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *entry[V]]
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithTTL sets the entry time-to-live
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source, for tests
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// New creates a Cache holding at most maxEntries values. maxEntries <= 0
// takes the default.
func New[V any](maxEntries int, opts ...Option[V]) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	// Size is positive, so construction cannot fail
	entries, _ := lru.New[string, *entry[V]](maxEntries)

	c := &Cache[V]{
		entries: entries,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key, resetting its TTL and refreshing its recency.
// If the cache is full the least recently used entry is evicted.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// Get returns the value under key. Expired entries are reported absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Has reports whether key holds a live entry, without refreshing recency
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	return ok && !c.expired(e)
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Swap switches the active session: it saves currentHistory under
// currentID, then returns the history stored under targetID. The save
// strictly precedes the load, inside one critical section, so the outgoing
// session's tail state is persisted even when the target is absent or the
// two ids collide.
func (c *Cache[V]) Swap(currentID string, currentHistory V, targetID string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(currentID, currentHistory)
	return c.get(targetID)
}

// Sweep removes every expired entry and returns how many were reclaimed
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && c.expired(e) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident entries, live or expired
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear drops every entry
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// set and get are the lock-free bodies shared by the exported methods

func (c *Cache[V]) set(key string, value V) {
	c.entries.Add(key, &entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
}

func (c *Cache[V]) get(key string) (V, bool) {
	e, ok := c.entries.Get(key)
	if !ok || c.expired(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// expired reports whether the entry's deadline has been reached. An entry
// is dead at the exact expiry instant, not one tick after.
func (c *Cache[V]) expired(e *entry[V]) bool {
	return !c.now().Before(e.expiresAt)
}

// NewSessionID mints a fresh session identifier
func NewSessionID() string {
	return uuid.NewString()
}
