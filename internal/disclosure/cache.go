package disclosure

import (
	"context"
	"sync"
	"time"
)

// snapshot is one built-and-indexed disclosure graph, keyed by the inputs
// that would change its contents.
type snapshot struct {
	graph *Graph
	index *Index
}

// Cache is the in-process fallback search index, used when no SQL storage
// capability is configured. Modeled on kernel/internal/auth/jwks.go's
// JWKSCache: a mutex-guarded map keyed by a cache key plus a lastFetch/ttl
// comparison, generalized from JWKS key sets to disclosure-graph snapshots.
type Cache struct {
	builder *Builder
	ttl     time.Duration

	mu        sync.RWMutex
	key       string
	snap      *snapshot
	lastFetch time.Time
}

// NewCache constructs a Cache with the given TTL (defaults to 30s if <= 0).
func NewCache(builder *Builder, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{builder: builder, ttl: ttl}
}

// Get returns the cached snapshot for cacheKey if still fresh, rebuilding it
// via the Builder on a cache miss or TTL expiry.
func (c *Cache) Get(ctx context.Context, cacheKey string, params Params) (*Graph, *Index, error) {
	c.mu.RLock()
	if c.snap != nil && c.key == cacheKey && time.Since(c.lastFetch) <= c.ttl {
		snap := c.snap
		c.mu.RUnlock()
		return snap.graph, snap.index, nil
	}
	c.mu.RUnlock()

	graph, err := c.builder.Build(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	index := BuildIndex(DocumentsFromGraph(graph))

	c.mu.Lock()
	c.key = cacheKey
	c.snap = &snapshot{graph: graph, index: index}
	c.lastFetch = time.Now().UTC()
	c.mu.Unlock()

	return graph, index, nil
}
