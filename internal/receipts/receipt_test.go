package receipts

import (
	"context"
	"sync"
	"testing"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/kv"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

// fakeObjectStore is a minimal in-memory sinks.ObjectStore for tests that
// need a Fanout with a bound primary sink.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) PutIfAbsent(_ context.Context, key string, body []byte, _ map[string]string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.objects[key]; ok {
		return existing, true, nil
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	f.objects[key] = stored
	return nil, false, nil
}

func newTestChain(t *testing.T) *auditchain.Chain {
	t.Helper()
	store := kv.NewMemoryStore()
	fanout := &sinks.Fanout{ObjectStore: newFakeObjectStore(), Source: "test-receipts"}
	return auditchain.New(store, fanout, sinks.ModeRequired)
}

func TestBuildReceipt_HashRoundTrips(t *testing.T) {
	chain := newTestChain(t)
	ctx := context.Background()
	entry, err := chain.Append(ctx, "USER_CLAIM", auditchain.Actor{Type: "wallet", ID: "wallet-a"}, "evt-1", map[string]interface{}{
		"confirmationCode": "ABC123",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	r, err := BuildReceipt(entry, "evt-1", "wallet-a", "ABC123", "/v1/receipts/verify")
	if err != nil {
		t.Fatalf("build receipt: %v", err)
	}
	if r.ReceiptID != entry.EntryHash {
		t.Fatalf("expected receiptId to equal entry hash")
	}

	recomputed, err := hashReceipt(r)
	if err != nil {
		t.Fatalf("recompute hash: %v", err)
	}
	if recomputed != r.ReceiptHash {
		t.Fatalf("expected receipt hash to round-trip, got %s want %s", recomputed, r.ReceiptHash)
	}
}

func TestReceiptStore_PersistAndLookup(t *testing.T) {
	chain := newTestChain(t)
	ctx := context.Background()
	entry, err := chain.Append(ctx, "USER_CLAIM", auditchain.Actor{Type: "wallet", ID: "wallet-a"}, "evt-1", map[string]interface{}{
		"confirmationCode": "ABC123",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	r, err := BuildReceipt(entry, "evt-1", "wallet-a", "ABC123", "/v1/receipts/verify")
	if err != nil {
		t.Fatalf("build receipt: %v", err)
	}

	store := NewStore(kv.NewMemoryStore())
	if err := store.Persist(ctx, "evt-1", "wallet-a", r); err != nil {
		t.Fatalf("persist: %v", err)
	}

	byCode, err := store.GetByCode(ctx, "evt-1", "ABC123")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if byCode.ReceiptID != r.ReceiptID {
		t.Fatalf("expected matching receipt by code")
	}

	bySubject, err := store.GetBySubject(ctx, "evt-1", "wallet-a")
	if err != nil {
		t.Fatalf("get by subject: %v", err)
	}
	if bySubject.ReceiptID != r.ReceiptID {
		t.Fatalf("expected matching receipt by subject")
	}
}
