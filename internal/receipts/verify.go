package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/canonical"
	"github.com/ILLUVRSE/ledger/internal/kv"
)

// ChainReader is the subset of auditchain.Chain that receipt verification
// needs: a direct by-hash lookup plus a bounded history scan fallback for
// entries a direct lookup somehow misses.
type ChainReader interface {
	GetByHash(ctx context.Context, hash string) (*auditchain.Entry, error)
	FindInHistory(ctx context.Context, hash string, limit int) (*auditchain.Entry, error)
}

// Checks is the ordered set of individual verification results.
type Checks struct {
	ReceiptHashValid            bool `json:"receiptHashValid"`
	EntryExists                 bool `json:"entryExists"`
	EntryHashValid               bool `json:"entryHashValid"`
	ReceiptIDMatchesEntryHash   bool `json:"receiptIdMatchesEntryHash"`
	ConfirmationCodeMatches     bool `json:"confirmationCodeMatches"`
	EventIDMatches              bool `json:"eventIdMatches"`
	PrevHashMatches             bool `json:"prevHashMatches"`
	StreamPrevHashMatches       bool `json:"streamPrevHashMatches"`
	GlobalChainLinkValid        bool `json:"globalChainLinkValid"`
	StreamChainLinkValid        bool `json:"streamChainLinkValid"`
	ImmutablePayloadHashMatches bool `json:"immutablePayloadHashMatches"`
	ImmutableSinksMatch         bool `json:"immutableSinksMatch"`
	ImmutableModeMatches        bool `json:"immutableModeMatches"`
}

// Proof carries the underlying audit facts a verification result was based on.
type Proof struct {
	EntryHash            string   `json:"entryHash"`
	PrevHash             string   `json:"prevHash"`
	StreamPrevHash       string   `json:"streamPrevHash"`
	ImmutablePayloadHash string   `json:"immutablePayloadHash,omitempty"`
	ImmutableSinks       []string `json:"immutableSinks,omitempty"`
}

// Result is the outcome of Verify.
type Result struct {
	OK               bool     `json:"ok"`
	CheckedAt        string   `json:"checkedAt"`
	ReceiptID        string   `json:"receiptId"`
	EventID          string   `json:"eventId"`
	ConfirmationCode string   `json:"confirmationCode"`
	Checks           Checks   `json:"checks"`
	Issues           []string `json:"issues"`
	Proof            Proof    `json:"proof"`
}

const historyScanLimit = 200

// Verify runs the full §4.E check list against r: the receipt's own hash,
// the existence and hash-validity of the audit entry it claims to anchor to,
// and the chain-link/immutable-fan-out facts that tie the two together.
// source is the fan-out envelope source string used when the entry was
// originally dispatched, needed to recompute its immutable payload hash.
func Verify(ctx context.Context, chain ChainReader, r *ParticipationReceipt, source string) (*Result, error) {
	result := &Result{
		CheckedAt:        time.Now().UTC().Format(time.RFC3339Nano),
		ReceiptID:        r.ReceiptID,
		EventID:          r.Audit.EventID,
		ConfirmationCode: r.ConfirmationCode,
		Issues:           []string{},
	}

	recomputedHash, err := hashReceipt(r)
	if err != nil {
		return nil, fmt.Errorf("recompute receipt hash: %w", err)
	}
	result.Checks.ReceiptHashValid = recomputedHash == r.ReceiptHash
	if !result.Checks.ReceiptHashValid {
		result.Issues = append(result.Issues, "receipt_hash_invalid")
	}

	entry, err := chain.GetByHash(ctx, r.ReceiptID)
	if errors.Is(err, kv.ErrNotFound) {
		entry, err = chain.FindInHistory(ctx, r.ReceiptID, historyScanLimit)
	}
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("look up audit entry: %w", err)
	}
	result.Checks.EntryExists = entry != nil
	if !result.Checks.EntryExists {
		result.Issues = append(result.Issues, "entry_not_found")
		result.OK = false
		return result, nil
	}

	result.Proof.EntryHash = entry.EntryHash
	result.Proof.PrevHash = entry.PrevHash
	result.Proof.StreamPrevHash = entry.StreamPrevHash

	ok, err := auditchain.VerifyEntryHash(entry)
	if err != nil {
		return nil, fmt.Errorf("verify entry hash: %w", err)
	}
	result.Checks.EntryHashValid = ok
	if !ok {
		result.Issues = append(result.Issues, "entry_hash_invalid")
	}

	result.Checks.ReceiptIDMatchesEntryHash = r.ReceiptID == entry.EntryHash
	if !result.Checks.ReceiptIDMatchesEntryHash {
		result.Issues = append(result.Issues, "receipt_id_mismatch")
	}

	result.Checks.ConfirmationCodeMatches = confirmationCodeFromEntry(entry) == r.ConfirmationCode
	if !result.Checks.ConfirmationCodeMatches {
		result.Issues = append(result.Issues, "confirmation_code_mismatch")
	}

	result.Checks.EventIDMatches = entry.EventID == r.Audit.EventID
	if !result.Checks.EventIDMatches {
		result.Issues = append(result.Issues, "event_id_mismatch")
	}

	result.Checks.PrevHashMatches = entry.PrevHash == r.Audit.PrevHash
	if !result.Checks.PrevHashMatches {
		result.Issues = append(result.Issues, "prev_hash_mismatch")
	}
	result.Checks.StreamPrevHashMatches = entry.StreamPrevHash == r.Audit.StreamPrevHash
	if !result.Checks.StreamPrevHashMatches {
		result.Issues = append(result.Issues, "stream_prev_hash_mismatch")
	}

	result.Checks.GlobalChainLinkValid = checkChainLink(ctx, chain, entry.PrevHash, "", false)
	if !result.Checks.GlobalChainLinkValid {
		result.Issues = append(result.Issues, "global_chain_link_invalid")
	}
	result.Checks.StreamChainLinkValid = checkChainLink(ctx, chain, entry.StreamPrevHash, entry.EventID, true)
	if !result.Checks.StreamChainLinkValid {
		result.Issues = append(result.Issues, "stream_chain_link_invalid")
	}

	var immutableSource string
	if entry.Immutable != nil {
		immutableSource = entry.Immutable.PayloadHash
	}
	result.Proof.ImmutablePayloadHash = immutableSource
	for _, s := range sinksOf(entry) {
		result.Proof.ImmutableSinks = append(result.Proof.ImmutableSinks, s.Sink+":"+s.Ref)
	}

	payloadMatches, sinksMatch, modeMatches, err := checkImmutable(entry, r, source)
	if err != nil {
		return nil, fmt.Errorf("recompute immutable payload hash: %w", err)
	}
	result.Checks.ImmutablePayloadHashMatches = payloadMatches
	if !payloadMatches {
		result.Issues = append(result.Issues, "immutable_payload_hash_mismatch")
	}
	result.Checks.ImmutableSinksMatch = sinksMatch
	if !sinksMatch {
		result.Issues = append(result.Issues, "immutable_sinks_mismatch")
	}
	result.Checks.ImmutableModeMatches = modeMatches
	if !modeMatches {
		result.Issues = append(result.Issues, "immutable_mode_mismatch")
	}

	result.OK = len(result.Issues) == 0
	return result, nil
}

func confirmationCodeFromEntry(e *auditchain.Entry) string {
	m, ok := e.Data.(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := m["confirmationCode"].(string)
	return code
}

func sinksOf(e *auditchain.Entry) []struct{ Sink, Ref string } {
	if e.Immutable == nil {
		return nil
	}
	out := make([]struct{ Sink, Ref string }, 0, len(e.Immutable.Sinks))
	for _, s := range e.Immutable.Sinks {
		out = append(out, struct{ Sink, Ref string }{Sink: s.Sink, Ref: s.Ref})
	}
	return out
}

// checkChainLink resolves the predecessor entry a parent hash points to.
// GENESIS is always valid. Otherwise the predecessor must exist and, for a
// stream link, must belong to the same eventId.
func checkChainLink(ctx context.Context, chain ChainReader, parentHash, eventID string, stream bool) bool {
	if parentHash == auditchain.Genesis {
		return true
	}
	parent, err := chain.GetByHash(ctx, parentHash)
	if errors.Is(err, kv.ErrNotFound) {
		parent, err = chain.FindInHistory(ctx, parentHash, historyScanLimit)
	}
	if err != nil || parent == nil {
		return false
	}
	if stream && parent.EventID != eventID {
		return false
	}
	return true
}

// checkImmutable recomputes the entry's immutable payload hash the same way
// verifyImmutableEntry does (canon({version:1,source,entry}), see
// auditchain/verifier.go) and compares it against the entry's own recorded
// hash, so an operator who edits entry.Immutable.PayloadHash directly in the
// store (bypassing entry_hash, which excludes Immutable) can't pass
// verification by construction. An empty recorded hash is tolerated, same as
// verifyImmutableEntry, since no primary sink may have been configured. It
// also checks the receipt's recorded immutable facts against the entry's
// actual fan-out outcome: sink-set equality as a (sink, ref) multiset, and
// mode equality.
func checkImmutable(e *auditchain.Entry, r *ParticipationReceipt, source string) (payloadMatches, sinksMatch, modeMatches bool, err error) {
	var entryPayloadHash, entryMode string
	var entrySinks []string
	if e.Immutable != nil {
		entryPayloadHash = e.Immutable.PayloadHash
		entryMode = e.Immutable.Mode
		for _, s := range e.Immutable.Sinks {
			entrySinks = append(entrySinks, s.Sink+"|"+s.Ref)
		}
	}

	// The fan-out hashed the entry before its immutable receipt was
	// attached, so the receipt is left out of the recomputed envelope.
	bare := *e
	bare.Immutable = nil
	recomputed, herr := canonical.HashOf(map[string]interface{}{
		"version": 1,
		"source":  source,
		"entry":   &bare,
	})
	if herr != nil {
		return false, false, false, herr
	}

	payloadMatches = entryPayloadHash == "" || entryPayloadHash == recomputed
	modeMatches = entryMode == r.Audit.ImmutableMode

	var receiptSinks []string
	for _, s := range r.Audit.ImmutableSinks {
		receiptSinks = append(receiptSinks, s.Sink+"|"+s.Ref)
	}
	sinksMatch = sameMultiset(entrySinks, receiptSinks)
	return payloadMatches, sinksMatch, modeMatches, nil
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
