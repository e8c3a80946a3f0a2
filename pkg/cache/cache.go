package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL cache. With a positive limit it holds at most
// that many keys, evicting the entry closest to expiry to make room.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	limit int
	now   func() time.Time
}

// New creates an unbounded cache
func New[V any]() *Cache[V] {
	return NewBounded[V](0)
}

// NewBounded creates a cache holding at most limit keys
func NewBounded[V any](limit int) *Cache[V] {
	return &Cache[V]{items: map[string]entry[V]{}, limit: limit, now: time.Now}
}

// Set stores value under key for ttl
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && c.limit > 0 && len(c.items) >= c.limit {
		c.evictLocked()
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Get returns the value under key unless it is missing or expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether key holds an unexpired value
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Load returns the cached value for key or computes, stores and returns it.
// Errors from load are returned and nothing is cached.
func (c *Cache[V]) Load(key string, ttl time.Duration, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Len returns the number of stored keys, expired ones included until purged
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes every key
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

// Purge drops expired entries and returns how many were removed
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) evictLocked() {
	var (
		victim string
		first  time.Time
	)
	for key, e := range c.items {
		if victim == "" || e.expiresAt.Before(first) {
			victim, first = key, e.expiresAt
		}
	}
	delete(c.items, victim)
}
