package disclosure

import (
	"context"
	"testing"
	"time"

	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/identity"
	"github.com/ILLUVRSE/ledger/internal/kv"
)

func TestCache_ServesFreshSnapshotWithinTTL(t *testing.T) {
	store := kv.NewMemoryStore()
	registry := identity.NewRegistry(store, "master-pass", "")
	events := claims.New(store)
	chain := newTestChainForCache(t, store)
	builder := NewBuilder(registry, events, chain)

	cache := NewCache(builder, time.Hour)
	ctx := context.Background()

	if _, _, err := registry.GenerateInvite(ctx, "alice"); err != nil {
		t.Fatalf("generate invite: %v", err)
	}

	graph1, _, err := cache.Get(ctx, "key-a", Params{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(graph1.Admins) != 1 {
		t.Fatalf("expected 1 admin, got %d", len(graph1.Admins))
	}

	// a second invite is created, but the same cache key should still serve
	// the stale snapshot within TTL.
	if _, _, err := registry.GenerateInvite(ctx, "bob"); err != nil {
		t.Fatalf("generate invite: %v", err)
	}
	graph2, _, err := cache.Get(ctx, "key-a", Params{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(graph2.Admins) != 1 {
		t.Fatalf("expected cached snapshot to still report 1 admin, got %d", len(graph2.Admins))
	}
}

func TestCache_RebuildsOnKeyChange(t *testing.T) {
	store := kv.NewMemoryStore()
	registry := identity.NewRegistry(store, "master-pass", "")
	events := claims.New(store)
	chain := newTestChainForCache(t, store)
	builder := NewBuilder(registry, events, chain)

	cache := NewCache(builder, time.Hour)
	ctx := context.Background()

	if _, _, err := registry.GenerateInvite(ctx, "alice"); err != nil {
		t.Fatalf("generate invite: %v", err)
	}
	if _, _, err := cache.Get(ctx, "key-a", Params{}); err != nil {
		t.Fatalf("get: %v", err)
	}

	if _, _, err := registry.GenerateInvite(ctx, "bob"); err != nil {
		t.Fatalf("generate invite: %v", err)
	}
	graph, _, err := cache.Get(ctx, "key-b", Params{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(graph.Admins) != 2 {
		t.Fatalf("expected a fresh build under a new key to see both admins, got %d", len(graph.Admins))
	}
}
