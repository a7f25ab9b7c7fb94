// Package cache holds in-memory TTL caches for hot lookups.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = time.Minute

// Cache is a typed TTL cache keyed by string-like keys.
type Cache[K ~string, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Flush()
}

type ttlCache[K ~string, V any] struct {
	c *gocache.Cache
}

// NewTTLCache returns a cache whose entries expire after their own ttl.
func NewTTLCache[K ~string, V any]() Cache[K, V] {
	return &ttlCache[K, V]{c: gocache.New(gocache.NoExpiration, defaultCleanupInterval)}
}

func (t *ttlCache[K, V]) Get(key K) (V, bool) {
	var zero V
	raw, ok := t.c.Get(string(key))
	if !ok {
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return value, true
}

func (t *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	t.c.Set(string(key), value, ttl)
}

func (t *ttlCache[K, V]) Delete(key K) {
	t.c.Delete(string(key))
}

func (t *ttlCache[K, V]) Flush() {
	t.c.Flush()
}
