package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader is a read-through cache that collapses concurrent misses for the
// same key into one load.
type Loader[V any] struct {
	cache Cache[string, V]
	group singleflight.Group
	ttl   time.Duration
}

func NewLoader[V any](ttl time.Duration) *Loader[V] {
	return &Loader[V]{
		cache: NewTTLCache[string, V](),
		ttl:   ttl,
	}
}

// Get returns the cached value or calls load once per key across concurrent
// callers. found=false results are not cached.
func (l *Loader[V]) Get(ctx context.Context, key string, load func(ctx context.Context) (V, bool, error)) (V, bool, error) {
	if value, ok := l.cache.Get(key); ok {
		return value, true, nil
	}

	type result struct {
		value V
		found bool
	}
	raw, err, _ := l.group.Do(key, func() (interface{}, error) {
		value, found, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if found {
			l.cache.Set(key, value, l.ttl)
		}
		return result{value: value, found: found}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	res := raw.(result)
	return res.value, res.found, nil
}

func (l *Loader[V]) Invalidate(key string) {
	l.group.Forget(key)
	l.cache.Delete(key)
}
