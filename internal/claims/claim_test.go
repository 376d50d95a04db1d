package claims

import (
	"context"
	"testing"
	"time"

	"github.com/ILLUVRSE/ledger/internal/kv"
)

func mustCreatePublishedEvent(t *testing.T, store *Store, id string, intervalDays int, maxPerInterval *int) {
	t.Helper()
	err := store.CreateEvent(context.Background(), &Event{
		ID:                   id,
		Title:                "Test Event",
		State:                StatePublished,
		TicketTokenAmount:    1,
		ClaimIntervalDays:    intervalDays,
		MaxClaimsPerInterval: maxPerInterval,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
}

func TestSubmitClaim_FirstClaimSucceeds(t *testing.T) {
	store := New(kv.NewMemoryStore())
	limit := 1
	mustCreatePublishedEvent(t, store, "evt-1", 7, &limit)

	result, err := store.SubmitClaim(context.Background(), "evt-1", "wallet-abc", "", "CODE01", time.Now())
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if result.AlreadyJoined {
		t.Fatalf("expected first claim to not be alreadyJoined")
	}
	if result.ConfirmationCode != "CODE01" {
		t.Fatalf("expected confirmation code to be recorded")
	}
}

func TestSubmitClaim_UnpublishedEventRejected(t *testing.T) {
	store := New(kv.NewMemoryStore())
	err := store.CreateEvent(context.Background(), &Event{ID: "evt-draft", State: StateDraft, ClaimIntervalDays: 1})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	_, err = store.SubmitClaim(context.Background(), "evt-draft", "wallet-1", "", "CODE", time.Now())
	if err != ErrNotEligible {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestSubmitClaim_WalletRequired(t *testing.T) {
	store := New(kv.NewMemoryStore())
	mustCreatePublishedEvent(t, store, "evt-1", 1, nil)

	_, err := store.SubmitClaim(context.Background(), "evt-1", "   ", "", "CODE", time.Now())
	if err != ErrWalletRequired {
		t.Fatalf("expected ErrWalletRequired, got %v", err)
	}
}

func TestSubmitClaim_IdempotentWithLimitOne(t *testing.T) {
	store := New(kv.NewMemoryStore())
	limit := 1
	mustCreatePublishedEvent(t, store, "evt-1", 7, &limit)
	ctx := context.Background()
	now := time.Now()

	first, err := store.SubmitClaim(ctx, "evt-1", "wallet-xyz", "", "CODE01", now)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.AlreadyJoined {
		t.Fatalf("expected first claim not alreadyJoined")
	}

	second, err := store.SubmitClaim(ctx, "evt-1", "wallet-xyz", "", "CODE02", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !second.AlreadyJoined {
		t.Fatalf("expected second claim to be alreadyJoined")
	}
	if second.ConfirmationCode != "CODE01" {
		t.Fatalf("expected the original confirmation code to be reused, got %s", second.ConfirmationCode)
	}

	claimants, err := store.GetClaimants(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get claimants: %v", err)
	}
	if len(claimants) != 1 {
		t.Fatalf("expected claim count to not advance, got %d claimants", len(claimants))
	}
}

func TestSubmitClaim_RatePolicyThreeInARow(t *testing.T) {
	store := New(kv.NewMemoryStore())
	limit := 2
	mustCreatePublishedEvent(t, store, "evt-1", 7, &limit)
	ctx := context.Background()
	now := time.Now()

	r1, err := store.SubmitClaim(ctx, "evt-1", "wallet-rate", "", "C1", now)
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	r2, err := store.SubmitClaim(ctx, "evt-1", "wallet-rate", "", "C2", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	r3, err := store.SubmitClaim(ctx, "evt-1", "wallet-rate", "", "C3", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("claim 3: %v", err)
	}

	if r1.AlreadyJoined || r2.AlreadyJoined {
		t.Fatalf("expected first two claims within the limit to succeed, got %v, %v", r1.AlreadyJoined, r2.AlreadyJoined)
	}
	if !r3.AlreadyJoined {
		t.Fatalf("expected third claim to exceed the interval limit")
	}
}

func TestNormalizeSubject_CollapsesWhitespaceAndPrefersWallet(t *testing.T) {
	got := normalizeSubject("  abc   def  ", "ignored")
	if got != "abc def" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
	got = normalizeSubject("", "  join   token  ")
	if got != "join token" {
		t.Fatalf("expected join token fallback, got %q", got)
	}
}

func TestCreateEvent_DuplicateOnChainTripleRejected(t *testing.T) {
	store := New(kv.NewMemoryStore())
	ctx := context.Background()
	err := store.CreateEvent(ctx, &Event{
		ID: "evt-a", State: StatePublished,
		SolanaMint: "mint1", SolanaAuthority: "auth1", SolanaGrantId: "grant1",
	})
	if err != nil {
		t.Fatalf("create first event: %v", err)
	}
	err = store.CreateEvent(ctx, &Event{
		ID: "evt-b", State: StatePublished,
		SolanaMint: "mint1", SolanaAuthority: "auth1", SolanaGrantId: "grant1",
	})
	if err != ErrDuplicateOnChainTriple {
		t.Fatalf("expected ErrDuplicateOnChainTriple, got %v", err)
	}
}
