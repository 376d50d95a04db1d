package pop

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
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

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	seed := priv.Seed()
	return NewSigner(base64.StdEncoding.EncodeToString(seed), base58.Encode(pub))
}

func newTestService(t *testing.T, store kv.Store, signer *Signer) (*Service, *claims.Store) {
	t.Helper()
	fanout := &sinks.Fanout{ObjectStore: newFakeObjectStore(), Source: "test-pop"}
	chain := auditchain.New(store, fanout, sinks.ModeRequired)
	events := claims.New(store)
	return NewService(store, chain, events, signer), events
}

func mustPublishedEvent(t *testing.T, events *claims.Store, id string) {
	t.Helper()
	if err := events.CreateEvent(context.Background(), &claims.Event{ID: id, State: claims.StatePublished}); err != nil {
		t.Fatalf("create event: %v", err)
	}
}

func randomBase58_32(t *testing.T) string {
	t.Helper()
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("random bytes: %v", err)
	}
	return base58.Encode(b)
}

func TestIssueClaimProof_MessageLayout(t *testing.T) {
	store := kv.NewMemoryStore()
	signer := newTestSigner(t)
	svc, events := newTestService(t, store, signer)
	mustPublishedEvent(t, events, "evt-1")

	grant := randomBase58_32(t)
	claimer := randomBase58_32(t)

	proof, err := svc.IssueClaimProof(context.Background(), "evt-1", grant, claimer, 0)
	if err != nil {
		t.Fatalf("issue claim proof: %v", err)
	}

	msg, err := base64.StdEncoding.DecodeString(proof.MessageBase64)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if len(msg) != 169 {
		t.Fatalf("expected 169-byte message, got %d", len(msg))
	}
	if msg[0] != 0x02 {
		t.Fatalf("expected version byte 0x02, got 0x%02x", msg[0])
	}
	if len(proof.EntryHash) != 64 || len(proof.PrevHash) != 64 || len(proof.StreamPrevHash) != 64 {
		t.Fatalf("expected 64-hex hashes, got entryHash=%s prevHash=%s streamPrevHash=%s",
			proof.EntryHash, proof.PrevHash, proof.StreamPrevHash)
	}
	wantZeroHash := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	if proof.PrevHash != wantZeroHash {
		t.Fatalf("expected a fresh grant's prevHash to be the all-zero sentinel, got %s", proof.PrevHash)
	}
}

func TestIssueClaimProof_ChainAdvances(t *testing.T) {
	store := kv.NewMemoryStore()
	signer := newTestSigner(t)
	svc, events := newTestService(t, store, signer)
	mustPublishedEvent(t, events, "evt-1")

	grant := randomBase58_32(t)
	claimer := randomBase58_32(t)

	first, err := svc.IssueClaimProof(context.Background(), "evt-1", grant, claimer, 0)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := svc.IssueClaimProof(context.Background(), "evt-1", grant, claimer, 1)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if second.PrevHash != first.EntryHash {
		t.Fatalf("expected second proof's prevHash to chain from first's entryHash, got %s want %s",
			second.PrevHash, first.EntryHash)
	}
}

func TestIssueClaimProof_EventNotPublishedRejected(t *testing.T) {
	store := kv.NewMemoryStore()
	signer := newTestSigner(t)
	svc, events := newTestService(t, store, signer)
	if err := events.CreateEvent(context.Background(), &claims.Event{ID: "evt-draft", State: claims.StateDraft}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	_, err := svc.IssueClaimProof(context.Background(), "evt-draft", randomBase58_32(t), randomBase58_32(t), 0)
	if err != ErrEventNotPublished {
		t.Fatalf("expected ErrEventNotPublished, got %v", err)
	}
}

func TestIssueClaimProof_EventNotFoundPropagates(t *testing.T) {
	store := kv.NewMemoryStore()
	signer := newTestSigner(t)
	svc, _ := newTestService(t, store, signer)

	_, err := svc.IssueClaimProof(context.Background(), "missing", randomBase58_32(t), randomBase58_32(t), 0)
	if err != claims.ErrEventNotFound {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestSigner_PubkeyMismatchRaisesOnFirstUse(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wrongPub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := NewSigner(base64.StdEncoding.EncodeToString(priv.Seed()), base58.Encode(wrongPub))

	store := kv.NewMemoryStore()
	svc, events := newTestService(t, store, signer)
	mustPublishedEvent(t, events, "evt-1")

	_, err = svc.IssueClaimProof(context.Background(), "evt-1", randomBase58_32(t), randomBase58_32(t), 0)
	if err == nil {
		t.Fatalf("expected pop signer pubkey mismatch error")
	}
}
