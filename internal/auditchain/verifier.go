package auditchain

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ILLUVRSE/ledger/internal/canonical"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

// Report is the result of VerifyIntegrity.
type Report struct {
	OK              bool     `json:"ok"`
	Mode            string   `json:"mode"`
	Checked         int      `json:"checked"`
	Limit           int      `json:"limit"`
	GlobalHead      string   `json:"globalHead"`
	OldestInWindow  string   `json:"oldestInWindow"`
	VerifyImmutable bool     `json:"verifyImmutable"`
	Issues          []string `json:"issues"`
	Warnings        []string `json:"warnings"`
	InspectedAt     string   `json:"inspectedAt"`
}

// VerifyIntegrity walks the latest `limit` audit history entries and checks
// entry-hash correctness plus the global and per-eventId stream graph shapes
// (exactly one head, no duplicates, no cycles, no forks), per §4.C. When
// verifyImmutable is set and the mode isn't off, it also re-derives each
// entry's immutable payload hash and, where an object store is bound,
// byte-compares the stored r2_entry payload.
func (c *Chain) VerifyIntegrity(ctx context.Context, limit int, verifyImmutable bool, objectStore sinks.ObjectStore) (*Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	entries, err := c.recentHistory(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Mode:            c.mode.String(),
		Checked:         len(entries),
		Limit:           limit,
		VerifyImmutable: verifyImmutable,
		Issues:          []string{},
		Warnings:        []string{},
		InspectedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}

	globalHead, err := c.readHead(ctx, keyGlobalHead)
	if err != nil {
		return nil, err
	}
	report.GlobalHead = globalHead
	if len(entries) > 0 {
		report.OldestInWindow = entries[len(entries)-1].EntryHash
	}

	byHash := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		if _, dup := byHash[e.EntryHash]; dup {
			report.Issues = append(report.Issues, fmt.Sprintf("duplicate_entry_hash:%s", e.EntryHash))
		}
		byHash[e.EntryHash] = e

		ok, err := VerifyEntryHash(e)
		if err != nil {
			return nil, fmt.Errorf("recompute entry hash for %s: %w", e.EntryHash, err)
		}
		if !ok {
			report.Issues = append(report.Issues, fmt.Sprintf("entry_hash_mismatch:%s", e.EntryHash))
		}
	}

	checkGraph(entries, func(e *Entry) string { return e.PrevHash }, "global", report)

	byEvent := make(map[string][]*Entry)
	for _, e := range entries {
		byEvent[e.EventID] = append(byEvent[e.EventID], e)
	}
	for eventID, group := range byEvent {
		checkGraph(group, func(e *Entry) string { return e.StreamPrevHash }, "stream:"+eventID, report)
	}

	if verifyImmutable && c.mode != sinks.ModeOff {
		source := ""
		if c.fanout != nil {
			source = c.fanout.Source
		}
		for _, e := range entries {
			verifyImmutableEntry(ctx, e, source, objectStore, report)
		}
	}

	report.OK = len(report.Issues) == 0
	return report, nil
}

// checkGraph verifies the graph-shape invariants for one parent-pointer
// relation (global prev_hash, or a single eventId's stream_prev_hash) over
// the given window of entries: exactly one head, no entry referenced as a
// parent by more than one child, no cycles, at most one parent pointer
// leaving the window (the oldest entry's, pointing to history before it).
func checkGraph(entries []*Entry, parentOf func(*Entry) string, label string, report *Report) {
	if len(entries) == 0 {
		return
	}

	referenced := make(map[string]int) // parent hash -> number of children pointing at it within the window
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.EntryHash] = true
	}

	leavingWindow := 0
	for _, e := range entries {
		parent := parentOf(e)
		if parent == Genesis {
			continue
		}
		referenced[parent]++
		if !present[parent] {
			leavingWindow++
		}
	}

	for parent, count := range referenced {
		if count > 1 {
			report.Issues = append(report.Issues, fmt.Sprintf("%s_fork:%s", label, parent))
		}
	}

	heads := 0
	for _, e := range entries {
		if referenced[e.EntryHash] == 0 {
			heads++
		}
	}
	if heads != 1 {
		report.Issues = append(report.Issues, fmt.Sprintf("%s_head_count:%d", label, heads))
	}

	if leavingWindow > 1 {
		report.Issues = append(report.Issues, fmt.Sprintf("%s_multiple_window_boundaries:%d", label, leavingWindow))
	}

	if cycleDetected(entries, parentOf, present) {
		report.Issues = append(report.Issues, label+"_cycle_detected")
	}
}

// cycleDetected walks each entry's parent chain within the window; if it
// revisits an entry before leaving the window or hitting Genesis, there's a cycle.
func cycleDetected(entries []*Entry, parentOf func(*Entry) string, present map[string]bool) bool {
	byHash := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		byHash[e.EntryHash] = e
	}
	for _, start := range entries {
		seen := map[string]bool{}
		cur := start
		for {
			if seen[cur.EntryHash] {
				return true
			}
			seen[cur.EntryHash] = true
			parent := parentOf(cur)
			if parent == Genesis || !present[parent] {
				break
			}
			next, ok := byHash[parent]
			if !ok {
				break
			}
			cur = next
		}
	}
	return false
}

// verifyImmutableEntry checks that e carries an immutable receipt, that its
// payload hash recomputes, that at least one authoritative sink accepted it,
// and — if an object store is bound — that the stored r2_entry bytes match.
func verifyImmutableEntry(ctx context.Context, e *Entry, source string, objectStore sinks.ObjectStore, report *Report) {
	if e.Immutable == nil {
		report.Issues = append(report.Issues, fmt.Sprintf("missing_immutable_receipt:%s", e.EntryHash))
		return
	}

	// The fan-out hashed the entry before its immutable receipt was
	// attached, so the receipt is left out of the recomputed envelope.
	bare := *e
	bare.Immutable = nil
	envelope := map[string]interface{}{
		"version": 1,
		"source":  source,
		"entry":   &bare,
	}
	payloadHash, err := canonical.HashOf(envelope)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("immutable_payload_recompute_error:%s: %v", e.EntryHash, err))
		return
	}
	if e.Immutable.PayloadHash != "" && e.Immutable.PayloadHash != payloadHash {
		report.Issues = append(report.Issues, fmt.Sprintf("payload_hash_mismatch:%s", e.EntryHash))
	}

	var sawAuthoritative bool
	var entryRef string
	for _, s := range e.Immutable.Sinks {
		if s.Sink == "r2_entry" || s.Sink == "immutable_ingest" {
			sawAuthoritative = true
		}
		if s.Sink == "r2_entry" {
			entryRef = s.Ref
		}
	}
	if !sawAuthoritative {
		report.Issues = append(report.Issues, fmt.Sprintf("no_authoritative_sink:%s", e.EntryHash))
	}

	if entryRef == "" {
		return
	}
	if objectStore == nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("object_store_not_bound:%s", e.EntryHash))
		return
	}

	envelopeBytes, err := canonical.MarshalCanonical(envelope)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("immutable_payload_marshal_error:%s: %v", e.EntryHash, err))
		return
	}

	existing, existed, err := objectStore.PutIfAbsent(ctx, entryRef, envelopeBytes, nil)
	switch {
	case err != nil:
		report.Warnings = append(report.Warnings, fmt.Sprintf("object_store_fetch_error:%s: %v", e.EntryHash, err))
	case !existed:
		report.Issues = append(report.Issues, fmt.Sprintf("immutable_object_missing:%s", e.EntryHash))
	case !bytes.Equal(existing, envelopeBytes):
		report.Issues = append(report.Issues, fmt.Sprintf("immutable_object_mismatch:%s", e.EntryHash))
	}
}
