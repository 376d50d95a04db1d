package disclosure

import (
	"context"
	"fmt"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
)

// Engine is the master-only disclosure/search façade §4.H describes:
// building the role-scoped graph and running search over it, backed by
// either the SQL index (when configured) or the in-process TTL cache.
type Engine struct {
	chain   *auditchain.Chain
	builder *Builder
	cache   *Cache
	sql     *SQLIndex
}

// NewEngine constructs an Engine. sqlIndex may be nil, in which case every
// lookup falls back to the in-process cache.
func NewEngine(chain *auditchain.Chain, builder *Builder, cache *Cache, sqlIndex *SQLIndex) *Engine {
	return &Engine{chain: chain, builder: builder, cache: cache, sql: sqlIndex}
}

// indexKey implements index_key = globalAuditHead|includeRevoked|transferLimit.
func (e *Engine) indexKey(ctx context.Context, params Params) (string, error) {
	head, err := e.chain.GlobalHead(ctx)
	if err != nil {
		return "", fmt.Errorf("read global audit head: %w", err)
	}
	return fmt.Sprintf("%s|%t|%d", head, params.IncludeRevoked, params.transferLimit()), nil
}

// Disclosure returns the disclosure graph for the given role ("master" sees
// full pii, anything else gets the redacted view).
func (e *Engine) Disclosure(ctx context.Context, role string, params Params) (*Graph, error) {
	graph, _, err := e.graphAndIndex(ctx, params)
	if err != nil {
		return nil, err
	}
	if role != "master" {
		return Redact(graph), nil
	}
	return graph, nil
}

// Search runs query over the disclosure graph's inverted index. Master only
// — callers are expected to have already checked the actor's role.
func (e *Engine) Search(ctx context.Context, query string, params Params) ([]SearchResult, error) {
	key, err := e.indexKey(ctx, params)
	if err != nil {
		return nil, err
	}

	if e.sql != nil {
		has, err := e.sql.Has(ctx, key)
		if err != nil {
			return nil, err
		}
		if !has {
			graph, err := e.builder.Build(ctx, params)
			if err != nil {
				return nil, err
			}
			docs := DocumentsFromGraph(graph)
			idx := BuildIndex(docs)
			if err := e.sql.Put(ctx, key, docs, idx); err != nil {
				return nil, err
			}
		}
		return e.sql.Search(ctx, key, query)
	}

	_, idx, err := e.graphAndIndex(ctx, params)
	if err != nil {
		return nil, err
	}
	return idx.Search(query), nil
}

func (e *Engine) graphAndIndex(ctx context.Context, params Params) (*Graph, *Index, error) {
	key, err := e.indexKey(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	return e.cache.Get(ctx, key, params)
}
