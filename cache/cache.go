//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=mock/cache.go
package cache

import (
	"context"

	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/totegamma/concurrent-client/core"
)

var lookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ccclient",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by entity kind and result.",
	},
	[]string{"kind", "result"},
)

// Cache is single-flight memoized access to one entity kind.
type Cache[V any] interface {
	GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error)
	Invalidate(key string)
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Store is the in-memory Cache implementation. Entries live for the
// lifetime of the owning client; there is no TTL or eviction.
type Store[V any] struct {
	kind  string
	mu    sync.Mutex
	items map[string]*call[V]
}

// NewStore creates a new store. kind labels the metrics series.
func NewStore[V any](kind string) *Store[V] {
	return &Store[V]{
		kind:  kind,
		items: make(map[string]*call[V]),
	}
}

// GetOrFetch returns the cached value for key, deduping concurrent
// callers: the in-flight call is stored before fetch runs, so at most
// one fetch per key is ever outstanding.
// Resolved values are kept, including absence (core.ErrorNotFound);
// transport failures are evicted so the next caller retries.
func (s *Store[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	s.mu.Lock()
	if c, ok := s.items[key]; ok {
		s.mu.Unlock()
		lookupsTotal.WithLabelValues(s.kind, "hit").Inc()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	s.items[key] = c
	s.mu.Unlock()
	lookupsTotal.WithLabelValues(s.kind, "miss").Inc()

	c.val, c.err = fetch(ctx)
	close(c.done)

	if c.err != nil && !core.IsNotFound(c.err) {
		s.mu.Lock()
		if s.items[key] == c {
			delete(s.items, key)
		}
		s.mu.Unlock()
	}

	return c.val, c.err
}

// Invalidate removes the entry for key. A fetch already in flight still
// settles for its waiters but is no longer reachable through the store.
func (s *Store[V]) Invalidate(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns the number of cached entries, in-flight included.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
