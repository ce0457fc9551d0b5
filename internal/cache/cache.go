// Package cache provides the short-lived read caches that dampen repeated
// upstream list fetches. Caches are constructed in main and injected into
// handlers; nothing in this service hangs state off a process global.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a mutex-guarded map cache with a fixed time-to-live per entry.
// Staleness up to the TTL is accepted; writers that must be seen immediately
// call Invalidate.
type TTL[V any] struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]entry[V]
	now     func() time.Time
}

func New[V any](ttl time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &TTL[V]{
		ttl:     ttl,
		entries: map[string]entry[V]{},
		now:     time.Now,
	}
}

func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: v, expiresAt: c.now().Add(c.ttl)}
}

func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *TTL[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]entry[V]{}
}

// GetOrFill returns the cached value for key, calling fill at most once per
// TTL window on a miss. Fill errors are not cached.
func (c *TTL[V]) GetOrFill(ctx context.Context, key string, fill func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fill(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}
