package dispatch

import (
	"time"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/config"
	"github.com/ILLUVRSE/ledger/internal/disclosure"
	"github.com/ILLUVRSE/ledger/internal/identity"
	"github.com/ILLUVRSE/ledger/internal/kv"
	"github.com/ILLUVRSE/ledger/internal/pop"
	"github.com/ILLUVRSE/ledger/internal/receipts"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

// newTestDeps wires a full Deps graph over an in-memory store with the
// immutable fan-out off, mirroring how a unit test would stand up
// cmd/ledger/main.go's dependency graph without any network services.
func newTestDeps() *Deps {
	store := kv.NewMemoryStore()
	chain := auditchain.New(store, nil, sinks.ModeOff)
	registry := identity.NewRegistry(store, "master-secret", "demo-secret")
	users := identity.NewUsers(store)
	sessions := identity.NewSessionSigner("session-secret", time.Hour)
	events := claims.New(store)
	codes := receipts.NewCodeReservation(store, 500)
	receiptStore := receipts.NewStore(store)
	signer := pop.NewSigner("", "")
	popService := pop.NewService(store, chain, events, signer)
	builder := disclosure.NewBuilder(registry, events, chain)
	cache := disclosure.NewCache(builder, 30*time.Second)
	engine := disclosure.NewEngine(chain, builder, cache, nil)

	return &Deps{
		Config:     &config.Config{CORSOrigin: "*", EnforceOnchainPop: true},
		Registry:   registry,
		Users:      users,
		Sessions:   sessions,
		Events:     events,
		Codes:      codes,
		Receipts:   receiptStore,
		Chain:      chain,
		Pop:        popService,
		Signer:     signer,
		Disclosure: engine,
		Source:     "test",
	}
}

func operatorSessionToken(t interface{ Fatalf(string, ...interface{}) }, deps *Deps, source string) string {
	actor := identity.Actor{AdminID: "operator-1", Name: "op", Source: source}
	tok, err := deps.Sessions.Issue(actor)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return tok
}
