package receipts

import (
	"context"
	"testing"

	"github.com/ILLUVRSE/ledger/internal/kv"
)

func TestReserve_FirstDrawSucceeds(t *testing.T) {
	store := kv.NewMemoryStore()
	r := NewCodeReservation(store, 0)

	code, err := r.Reserve(context.Background(), "evt-1", "wallet-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(code) != codeLength {
		t.Fatalf("expected a %d-char code, got %q", codeLength, code)
	}
}

func TestReserve_RetriesOnCollision(t *testing.T) {
	store := kv.NewMemoryStore()
	r := NewCodeReservation(store, 0)

	draws := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	i := 0
	r.SetGenerator(func() (string, error) {
		code := draws[i]
		if i < len(draws)-1 {
			i++
		}
		return code, nil
	})

	first, err := r.Reserve(context.Background(), "evt-1", "wallet-a")
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if first != "AAAAAA" {
		t.Fatalf("expected first reservation to take AAAAAA, got %s", first)
	}

	i = 0 // replay the same collision sequence for a second caller
	second, err := r.Reserve(context.Background(), "evt-1", "wallet-b")
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if second != "BBBBBB" {
		t.Fatalf("expected second reservation to skip the taken code and land on BBBBBB, got %s", second)
	}
}

func TestReserve_ExhaustionReturnsError(t *testing.T) {
	store := kv.NewMemoryStore()
	r := NewCodeReservation(store, 0)
	r.SetGenerator(func() (string, error) { return "TAKEN1", nil })

	if _, err := r.Reserve(context.Background(), "evt-1", "wallet-a"); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	_, err := r.Reserve(context.Background(), "evt-1", "wallet-b")
	if err != ErrCodeExhausted {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}
}

func TestRelease_OnlyDeletesMatchingOwner(t *testing.T) {
	store := kv.NewMemoryStore()
	r := NewCodeReservation(store, 0)
	r.SetGenerator(func() (string, error) { return "OWNED1", nil })
	ctx := context.Background()

	code, err := r.Reserve(ctx, "evt-1", "wallet-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := r.Release(ctx, "evt-1", "wallet-b", code); err != nil {
		t.Fatalf("release with wrong owner: %v", err)
	}
	if _, err := store.Get(ctx, confirmationCodeIndexKey(code)); err != nil {
		t.Fatalf("expected index entry to survive a non-owner release, got %v", err)
	}

	if err := r.Release(ctx, "evt-1", "wallet-a", code); err != nil {
		t.Fatalf("release with correct owner: %v", err)
	}
	if _, err := store.Get(ctx, confirmationCodeIndexKey(code)); err != kv.ErrNotFound {
		t.Fatalf("expected index entry to be deleted, got %v", err)
	}
}

func TestEnsureIndexed_Idempotent(t *testing.T) {
	store := kv.NewMemoryStore()
	r := NewCodeReservation(store, 0)
	ctx := context.Background()

	if err := r.EnsureIndexed(ctx, "evt-1", "wallet-a", "LEGACY1"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := r.EnsureIndexed(ctx, "evt-1", "wallet-a", "LEGACY1"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
}
