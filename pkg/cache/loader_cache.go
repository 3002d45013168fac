// Package cache provides a TTL loader cache combining expirable LRU storage
// with singleflight so concurrent misses for one key share a single load.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// TTLLoader caches values by string key with a bounded size and per-entry
// TTL, loading on miss via a callback. A burst of N concurrent misses for
// the same key runs one load; the rest wait for and share that result.
// Load errors are never cached.
type TTLLoader[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

// NewTTLLoader creates a loader cache holding at most maxEntries values,
// each expiring ttl after insertion (ttl 0 disables expiry).
func NewTTLLoader[V any](maxEntries int, ttl time.Duration) *TTLLoader[V] {
	return &TTLLoader[V]{
		lru: expirable.NewLRU[string, V](maxEntries, nil, ttl),
	}
}

// Get returns the cached value for key, or runs load and caches its result.
// The second return reports whether the value came from cache.
func (c *TTLLoader[V]) Get(ctx context.Context, key string, load func(context.Context, string) (V, error)) (V, bool, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, true, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return nil, loadErr
		}

		c.lru.Add(key, loaded)

		return loaded, nil
	})
	if err != nil {
		var zero V

		return zero, false, err
	}

	return val.(V), false, nil
}

// Remove evicts key from the cache.
func (c *TTLLoader[V]) Remove(key string) {
	c.lru.Remove(key)
}

// Purge drops every cached entry.
func (c *TTLLoader[V]) Purge() {
	c.lru.Purge()
}
