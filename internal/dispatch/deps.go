package dispatch

import (
	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/config"
	"github.com/ILLUVRSE/ledger/internal/disclosure"
	"github.com/ILLUVRSE/ledger/internal/identity"
	"github.com/ILLUVRSE/ledger/internal/pop"
	"github.com/ILLUVRSE/ledger/internal/receipts"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

// Deps is the explicit set of collaborators every handler closure needs.
// kernel/internal/handlers/handlers.go pulls these out of an app context via
// reflection; this package takes a plain struct instead so the wiring in
// cmd/ledger/main.go stays type-checked at compile time.
type Deps struct {
	Config *config.Config

	Registry *identity.Registry
	Users    *identity.Users
	Sessions *identity.SessionSigner

	Events   *claims.Store
	Codes    *receipts.CodeReservation
	Receipts *receipts.Store

	Chain  *auditchain.Chain
	Pop    *pop.Service
	Signer *pop.Signer

	Disclosure *disclosure.Engine

	ObjectStore sinks.ObjectStore // optional, for audit-integrity verification
	Source      string            // fan-out envelope source, needed by receipts.Verify
}
