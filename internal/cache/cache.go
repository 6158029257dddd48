// Package cache provides the single bounded read-through cache used by any
// component that fronts repeated lookups. Capacity is enforced by LRU
// eviction and entries expire after the configured TTL.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultCapacity = 256

// Cache is a bounded LRU cache with TTL expiry. The zero value is not usable;
// construct with New.
type Cache[K comparable, V any] struct {
	inner *expirable.LRU[K, V]
}

// New creates a cache holding at most capacity entries, each valid for ttl.
// A non-positive capacity falls back to a sane default; a zero ttl disables
// expiry.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Cache[K, V]{inner: expirable.NewLRU[K, V](capacity, nil, ttl)}
}

// Get returns the cached value for key if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

// Set stores value under key, evicting the least recently used entry on
// overflow.
func (c *Cache[K, V]) Set(key K, value V) {
	c.inner.Add(key, value)
}

// Invalidate drops the entry for key. Writers must call this for any entity
// they mutate.
func (c *Cache[K, V]) Invalidate(key K) {
	c.inner.Remove(key)
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.inner.Purge()
}

// Len reports the number of live entries.
func (c *Cache[K, V]) Len() int {
	return c.inner.Len()
}
