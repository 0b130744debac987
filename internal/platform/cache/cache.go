package cache

import (
	"sync"
	"time"
)

// DefaultTTL bounds entry lifetime when callers do not configure one.
const DefaultTTL = 30 * time.Second

// TTLCache is a small injectable read cache with explicit invalidation. It
// replaces ad-hoc module-level caches tied to component lifetime: entries
// expire on their own and writers invalidate on every mutation, so remounted
// readers never observe a stale order across a status transition.
type TTLCache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Option customises cache construction.
type Option[V any] func(*TTLCache[V])

// WithClock injects a custom clock (useful for tests).
func WithClock[V any](clock func() time.Time) Option[V] {
	return func(c *TTLCache[V]) {
		if clock != nil {
			c.now = clock
		}
	}
}

// New constructs a TTLCache with the given entry lifetime.
func New[V any](ttl time.Duration, opts ...Option[V]) *TTLCache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &TTLCache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns the cached value when present and unexpired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return item.value, true
}

// Set stores the value under key for the configured TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate drops a single entry.
func (c *TTLCache[V]) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry.
func (c *TTLCache[V]) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}
