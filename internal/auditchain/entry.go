// Package auditchain implements the append-only, double hash-chained audit
// log (global chain + per-eventId stream chain) and its integrity verifier,
// grounded on kernel/internal/audit's Store/FileStore/PGStore split and its
// chain_verifer.go graph-shape checks, generalized from a single
// Ed25519-signed chain to the two independent canonical-JSON SHA-256 chains
// this system requires.
package auditchain

import (
	"fmt"

	"github.com/ILLUVRSE/ledger/internal/canonical"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

// Genesis is the sentinel previous-hash value for a chain with no entries yet.
const Genesis = "GENESIS"

// Actor identifies who caused a mutation, for audit attribution.
type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Entry is the canonical, immutable audit record.
type Entry struct {
	Ts             string                  `json:"ts"`
	Event          string                  `json:"event"`
	EventID        string                  `json:"eventId"`
	Actor          Actor                   `json:"actor"`
	Data           interface{}             `json:"data"`
	PrevHash       string                  `json:"prev_hash"`
	StreamPrevHash string                  `json:"stream_prev_hash"`
	EntryHash      string                  `json:"entry_hash"`
	Immutable      *sinks.ImmutableReceipt `json:"immutable,omitempty"`
}

// hashInput returns the exact field subset the entry hash is computed over.
// Order of map keys doesn't matter — canonical.MarshalCanonical sorts them —
// but the field SET must stay fixed: ts, event, eventId, actor, data,
// prev_hash, stream_prev_hash.
func hashInput(ts, event, eventID string, actor Actor, data interface{}, prevHash, streamPrevHash string) map[string]interface{} {
	return map[string]interface{}{
		"ts":               ts,
		"event":            event,
		"eventId":          eventID,
		"actor":            actor,
		"data":             data,
		"prev_hash":        prevHash,
		"stream_prev_hash": streamPrevHash,
	}
}

// computeEntryHash canonicalizes hashInput(...) and returns its SHA-256 hex.
func computeEntryHash(ts, event, eventID string, actor Actor, data interface{}, prevHash, streamPrevHash string) (string, error) {
	h, err := canonical.HashOf(hashInput(ts, event, eventID, actor, data, prevHash, streamPrevHash))
	if err != nil {
		return "", fmt.Errorf("hash audit entry: %w", err)
	}
	return h, nil
}

// VerifyEntryHash recomputes e's entry_hash from its own fields and reports
// whether it matches the stored value.
func VerifyEntryHash(e *Entry) (bool, error) {
	got, err := computeEntryHash(e.Ts, e.Event, e.EventID, e.Actor, e.Data, e.PrevHash, e.StreamPrevHash)
	if err != nil {
		return false, err
	}
	return got == e.EntryHash, nil
}
