package disclosure

import (
	"context"
	"testing"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/identity"
	"github.com/ILLUVRSE/ledger/internal/kv"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

func newTestBuilder(t *testing.T, store kv.Store) (*Builder, *identity.Registry, *claims.Store, *auditchain.Chain) {
	t.Helper()
	registry := identity.NewRegistry(store, "master-pass", "")
	events := claims.New(store)
	chain := newTestChainForCache(t, store)
	return NewBuilder(registry, events, chain), registry, events, chain
}

func newTestChainForCache(t *testing.T, store kv.Store) *auditchain.Chain {
	t.Helper()
	return auditchain.New(store, &sinks.Fanout{Source: "test-disclosure"}, sinks.ModeOff)
}

func TestBuild_OwnedEventsByExplicitLink(t *testing.T) {
	store := kv.NewMemoryStore()
	builder, registry, events, _ := newTestBuilder(t, store)
	ctx := context.Background()

	token, rec, err := registry.GenerateInvite(ctx, "alice")
	if err != nil {
		t.Fatalf("generate invite: %v", err)
	}
	actor, err := registry.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := events.CreateEvent(ctx, &claims.Event{ID: "evt-1", State: claims.StatePublished}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if err := registry.RecordEventOwner(ctx, "evt-1", *actor); err != nil {
		t.Fatalf("record owner: %v", err)
	}

	graph, err := builder.Build(ctx, Params{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(graph.Admins) != 1 {
		t.Fatalf("expected 1 admin, got %d", len(graph.Admins))
	}
	admin := graph.Admins[0]
	if admin.AdminID != rec.AdminID {
		t.Fatalf("expected admin %s, got %s", rec.AdminID, admin.AdminID)
	}
	if len(admin.Events) != 1 || admin.Events[0].EventID != "evt-1" || admin.Events[0].Inferred {
		t.Fatalf("expected one explicitly owned event, got %+v", admin.Events)
	}
}

func TestBuild_ExcludesRevokedByDefault(t *testing.T) {
	store := kv.NewMemoryStore()
	builder, registry, _, _ := newTestBuilder(t, store)
	ctx := context.Background()

	token, _, err := registry.GenerateInvite(ctx, "bob")
	if err != nil {
		t.Fatalf("generate invite: %v", err)
	}
	if err := registry.RevokeInvite(ctx, token, "master"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	graph, err := builder.Build(ctx, Params{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(graph.Admins) != 0 {
		t.Fatalf("expected revoked admin excluded by default, got %d", len(graph.Admins))
	}

	graph, err = builder.Build(ctx, Params{IncludeRevoked: true})
	if err != nil {
		t.Fatalf("build with includeRevoked: %v", err)
	}
	if len(graph.Admins) != 1 {
		t.Fatalf("expected revoked admin included, got %d", len(graph.Admins))
	}
}

func TestProjectTransfer_StructuredAndLegacy(t *testing.T) {
	structured := &auditchain.Entry{
		EventID:   "evt-1",
		Event:     "USER_CLAIM",
		EntryHash: "hash-1",
		Data: map[string]interface{}{
			"userId": "alice.k",
			"transfer": map[string]interface{}{
				"solanaAuthority":   "auth-1",
				"solanaMint":        "mint-1",
				"ticketTokenAmount": "5",
				"txSignature":       "sig-1",
				"receiptPubkey":     "rcpt-1",
				"recipient":         "recipient-1",
			},
		},
	}
	payload, ok := projectTransfer(structured)
	if !ok {
		t.Fatalf("expected structured transfer to project")
	}
	if payload.SolanaAuthority != "auth-1" || payload.GroupKey != "alice.k" {
		t.Fatalf("unexpected structured projection: %+v", payload)
	}

	legacy := &auditchain.Entry{
		EventID:   "evt-2",
		Event:     "WALLET_CLAIM",
		EntryHash: "hash-2",
		Data: map[string]interface{}{
			"walletAddress": "wallet-xyz",
			"solanaMint":    "mint-2",
			"txSignature":   "sig-2",
		},
	}
	legacyPayload, ok := projectTransfer(legacy)
	if !ok {
		t.Fatalf("expected legacy transfer to project")
	}
	if legacyPayload.SolanaAuthority != "grant:evt-2" {
		t.Fatalf("expected legacy fallback grant authority, got %s", legacyPayload.SolanaAuthority)
	}
	if legacyPayload.GroupKey != "wallet-xyz" {
		t.Fatalf("expected walletAddress group key, got %s", legacyPayload.GroupKey)
	}
}

func TestRedact_StripsPII(t *testing.T) {
	graph := &Graph{
		Admins: []AdminDisclosure{
			{
				AdminID: "a1",
				Users: []UserSummary{
					{
						GroupKey: "alice.k",
						Transfers: []TransferAuditPayload{
							{EventID: "evt-1", PII: map[string]interface{}{"email": "a@example.com"}},
						},
					},
				},
			},
		},
	}
	redacted := Redact(graph)
	if redacted.Admins[0].Users[0].Transfers[0].PII != nil {
		t.Fatalf("expected pii stripped in redacted view")
	}
	if graph.Admins[0].Users[0].Transfers[0].PII == nil {
		t.Fatalf("expected original graph to keep pii untouched")
	}
}
