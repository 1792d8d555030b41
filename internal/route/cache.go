package route

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/observability"
)

// Cache is a tiny in-memory cache for route lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  models.RouteSummary
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (models.RouteSummary, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.RouteSummary{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.RouteSummary{}, false
	}
	return e.v, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, v models.RouteSummary) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Cached serves repeated lookups for the same pair from c. Failures are not cached.
func Cached(f Fetcher, c *Cache) Fetcher { return &cachedFetcher{next: f, cache: c} }

type cachedFetcher struct {
	next  Fetcher
	cache *Cache
}

func (f *cachedFetcher) Fetch(ctx context.Context, start, end models.Coord) (models.RouteSummary, error) {
	if v, ok := f.cache.Get(start, end); ok {
		return v, nil
	}
	v, err := f.next.Fetch(ctx, start, end)
	if err != nil {
		return models.RouteSummary{}, err
	}
	f.cache.Set(start, end, v)
	return v, nil
}

// Instrumented records fetch latency under the provider label.
func Instrumented(provider string, f Fetcher) Fetcher {
	return &instrumentedFetcher{provider: provider, next: f}
}

type instrumentedFetcher struct {
	provider string
	next     Fetcher
}

func (f *instrumentedFetcher) Fetch(ctx context.Context, start, end models.Coord) (models.RouteSummary, error) {
	begin := time.Now()
	v, err := f.next.Fetch(ctx, start, end)
	observability.RouteFetchSeconds.WithLabelValues(f.provider, observability.Result(err)).Observe(time.Since(begin).Seconds())
	return v, err
}
