package cache

import (
	"context"
	"encoding/json"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore layers a memcached second level under an in-memory
// Store. Useful when several client processes share one resolver cache,
// e.g. a fleet of bridge workers resolving the same entities.
type MemcachedStore[V any] struct {
	mem    *Store[V]
	mc     *memcache.Client
	prefix string
}

// NewMemcachedStore creates a memcached-backed store. prefix namespaces
// the keys within the memcached instance.
func NewMemcachedStore[V any](kind string, mc *memcache.Client, prefix string) *MemcachedStore[V] {
	return &MemcachedStore[V]{
		mem:    NewStore[V](kind),
		mc:     mc,
		prefix: prefix,
	}
}

// GetOrFetch checks memory first, then memcached, then fetches.
// Fetched values are written back without expiry.
func (s *MemcachedStore[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	return s.mem.GetOrFetch(ctx, key, func(ctx context.Context) (V, error) {
		item, err := s.mc.Get(s.prefix + key)
		if err == nil {
			var cached V
			if err := json.Unmarshal(item.Value, &cached); err == nil {
				return cached, nil
			}
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return fetched, err
		}

		encoded, err := json.Marshal(fetched)
		if err == nil {
			s.mc.Set(&memcache.Item{Key: s.prefix + key, Value: encoded})
		}

		return fetched, nil
	})
}

// Invalidate evicts key from both levels.
func (s *MemcachedStore[V]) Invalidate(key string) {
	s.mem.Invalidate(key)
	s.mc.Delete(s.prefix + key)
}
