package auditchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ILLUVRSE/ledger/internal/kv"
	"github.com/ILLUVRSE/ledger/internal/logging"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

var log = logging.New("auditchain")

const (
	keyGlobalHead   = "audit:lastHash:global"
	historyPrefix   = "audit_history:"
	entryKeyPrefix  = "audit_entry:"
	defaultHistoryN = 50
)

func streamHeadKey(eventID string) string {
	return "audit:lastHash:" + eventID
}

func historyKey(ts, entryHash string) string {
	return fmt.Sprintf("%s%s:%s", historyPrefix, ts, entryHash)
}

func entryKey(entryHash string) string {
	return entryKeyPrefix + entryHash
}

// Chain is the audit chain engine: a single process-wide writer lock
// (auditLock in the spec's terms) guarding global-head read, hash
// computation, immutable fan-out, and the final persisted batch.
type Chain struct {
	store  kv.Store
	fanout *sinks.Fanout
	mode   sinks.Mode

	mu sync.Mutex
}

// New constructs a Chain bound to a KV store, an optional fan-out, and the
// configured immutable mode.
func New(store kv.Store, fanout *sinks.Fanout, mode sinks.Mode) *Chain {
	return &Chain{store: store, fanout: fanout, mode: mode}
}

// Mode reports the configured immutable enforcement mode.
func (c *Chain) Mode() sinks.Mode { return c.mode }

// readHead returns the stored head hash for key, or Genesis if absent.
func (c *Chain) readHead(ctx context.Context, key string) (string, error) {
	v, err := c.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return Genesis, nil
	}
	if err != nil {
		return "", fmt.Errorf("read head %s: %w", key, err)
	}
	return string(v), nil
}

// Append builds a new entry for eventID, dispatches it to the immutable
// fan-out, and — only if the fan-out did not fail in required mode —
// advances both chain heads and persists the history/by-hash records. The
// whole sequence runs under the single audit lock, including the fan-out's
// own network I/O, so the immutable receipt is atomic with the chain
// advance.
func (c *Chain) Append(ctx context.Context, event string, actor Actor, eventID string, data interface{}) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	globalHead, err := c.readHead(ctx, keyGlobalHead)
	if err != nil {
		return nil, err
	}
	streamHead, err := c.readHead(ctx, streamHeadKey(eventID))
	if err != nil {
		return nil, err
	}

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	entryHash, err := computeEntryHash(ts, event, eventID, actor, data, globalHead, streamHead)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Ts:             ts,
		Event:          event,
		EventID:        eventID,
		Actor:          actor,
		Data:           data,
		PrevHash:       globalHead,
		StreamPrevHash: streamHead,
		EntryHash:      entryHash,
	}

	if c.fanout != nil {
		receipt, err := c.fanout.Dispatch(ctx, sinks.DispatchParams{
			EntryHash:      entryHash,
			EventID:        eventID,
			Ts:             ts,
			PrevHash:       globalHead,
			StreamPrevHash: streamHead,
			Entry:          entry,
			Mode:           c.mode,
		})
		if err != nil {
			// mode=required: the append must not advance pointers.
			return nil, fmt.Errorf("immutable fan-out: %w", err)
		}
		entry.Immutable = receipt
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal audit entry: %w", err)
	}

	if err := c.store.Put(ctx, keyGlobalHead, []byte(entryHash)); err != nil {
		return nil, fmt.Errorf("advance global head: %w", err)
	}
	if err := c.store.Put(ctx, streamHeadKey(eventID), []byte(entryHash)); err != nil {
		return nil, fmt.Errorf("advance stream head: %w", err)
	}
	if err := c.store.Put(ctx, historyKey(ts, entryHash), b); err != nil {
		return nil, fmt.Errorf("persist history record: %w", err)
	}
	if err := c.store.Put(ctx, entryKey(entryHash), b); err != nil {
		return nil, fmt.Errorf("persist by-hash record: %w", err)
	}

	return entry, nil
}

// GetByHash looks up an entry directly by its entry_hash.
func (c *Chain) GetByHash(ctx context.Context, hash string) (*Entry, error) {
	b, err := c.store.Get(ctx, entryKey(hash))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %s: %w", hash, err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode audit entry %s: %w", hash, err)
	}
	return &e, nil
}

// FindInHistory scans the most recent `limit` history entries for one whose
// entry_hash matches — a bounded fallback for callers that can't assume
// every hash they're asked to verify is still reachable via GetByHash alone.
func (c *Chain) FindInHistory(ctx context.Context, hash string, limit int) (*Entry, error) {
	entries, err := c.recentHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.EntryHash == hash {
			return e, nil
		}
	}
	return nil, kv.ErrNotFound
}

// GlobalHead returns the current global chain head hash (Genesis if the
// chain is empty) — used as part of the search index's cache/invalidation key.
func (c *Chain) GlobalHead(ctx context.Context) (string, error) {
	return c.readHead(ctx, keyGlobalHead)
}

// GetRecentAuditLogs returns the most recent `limit` entries, newest first
// (0 means unbounded) — the disclosure engine's window over transfer-class
// entries uses this instead of the fixed-50 GetAuditLogs.
func (c *Chain) GetRecentAuditLogs(ctx context.Context, limit int) ([]*Entry, error) {
	return c.recentHistory(ctx, limit)
}

// PrimarySinkConfigured reports whether a primary immutable sink (object
// store or HTTP ingest) is bound — the §4.J "auditPrimarySinkConfigured"
// readiness check.
func (c *Chain) PrimarySinkConfigured() bool {
	return c.fanout != nil && c.fanout.HasPrimary()
}

// OperationallyReady reports whether an append can be expected to succeed
// right now: trivially true off required mode, otherwise only when a
// primary sink is bound — the §4.I fail-closed preflight and the §4.J
// "auditOperationalReady" readiness check share this definition.
func (c *Chain) OperationallyReady() bool {
	return c.mode != sinks.ModeRequired || c.PrimarySinkConfigured()
}

// GetAuditLogs returns the most recent 50 entries, newest first.
func (c *Chain) GetAuditLogs(ctx context.Context) ([]*Entry, error) {
	return c.recentHistory(ctx, defaultHistoryN)
}

// recentHistory scans the history keyspace (which sorts ascending by ts
// since key = "audit_history:<ts>:<hash>") and returns the newest `limit`
// entries in reverse chronological order.
func (c *Chain) recentHistory(ctx context.Context, limit int) ([]*Entry, error) {
	keys, err := c.store.Scan(ctx, historyPrefix, 0)
	if err != nil {
		return nil, fmt.Errorf("scan audit history: %w", err)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	entries := make([]*Entry, 0, len(keys))
	for _, k := range keys {
		b, err := c.store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("get history record %s: %w", k, err)
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("decode history record %s: %w", k, err)
		}
		entries = append(entries, &e)
	}

	// reverse to newest-first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// isHexHash is a loose sanity check for user-supplied hash strings (64
// lowercase hex characters). Nothing in this package calls it.
func isHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	return !strings.ContainsFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f')
	})
}
