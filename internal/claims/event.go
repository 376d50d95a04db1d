// Package claims owns Event and Claim state: creation, lookup, and the
// per-subject rate-window eligibility check, grounded on
// kernel/internal/audit's Store/PGStore split but built over the generic
// kv.Store keyspace instead of a dedicated audit_events table, since events
// and claims are plain mutable records rather than an append-only log.
package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ILLUVRSE/ledger/internal/kv"
)

// Event states.
const (
	StateDraft     = "draft"
	StatePublished = "published"
	StateEnded     = "ended"
)

// Event is an attendance-tracked occasion. Created by an operator, mutated
// only via admin endpoints, never deleted.
type Event struct {
	ID                   string `json:"id" validate:"required"`
	Title                string `json:"title"`
	Datetime             string `json:"datetime"`
	Host                 string `json:"host"`
	State                string `json:"state"`
	SolanaMint           string `json:"solanaMint,omitempty"`
	SolanaAuthority      string `json:"solanaAuthority,omitempty"`
	SolanaGrantId        string `json:"solanaGrantId,omitempty"`
	TicketTokenAmount    int64  `json:"ticketTokenAmount"`
	ClaimIntervalDays    int    `json:"claimIntervalDays"`
	MaxClaimsPerInterval *int   `json:"maxClaimsPerInterval"` // nil = unlimited
	RiskProfile          string `json:"riskProfile,omitempty"`
}

// ErrDuplicateOnChainTriple is returned by CreateEvent when the
// (solanaMint, solanaAuthority, solanaGrantId) triple is already in use.
var ErrDuplicateOnChainTriple = errors.New("duplicate on-chain triple")

// ErrEventNotFound is returned by GetEvent when no event exists with the id.
var ErrEventNotFound = errors.New("event not found")

func eventKey(id string) string { return "event:" + id }

// Store owns Event and Claim persistence over the shared kv keyspace.
type Store struct {
	kv kv.Store

	// mu serializes claim read-modify-write sequences. The spec's four
	// named locks don't cover plain claim submission because its source
	// runtime was single-threaded; under real OS threads a claim append
	// still needs to be race-free, so this package adds its own.
	mu sync.Mutex
}

// New constructs a claims Store over the given kv.Store.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// CreateEvent validates the on-chain triple uniqueness invariant and
// persists a new event. ev.ID must already be set by the caller.
func (s *Store) CreateEvent(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		return fmt.Errorf("event id required")
	}
	if ev.State == "" {
		ev.State = StateDraft
	}

	if ev.SolanaMint != "" && ev.SolanaAuthority != "" && ev.SolanaGrantId != "" {
		existing, err := s.GetEvents(ctx)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.SolanaMint == ev.SolanaMint &&
				other.SolanaAuthority == ev.SolanaAuthority &&
				other.SolanaGrantId == ev.SolanaGrantId {
				return ErrDuplicateOnChainTriple
			}
		}
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.kv.Put(ctx, eventKey(ev.ID), b); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	return nil
}

// GetEvent looks up an event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	b, err := s.kv.Get(ctx, eventKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", id, err)
	}
	return &ev, nil
}

// PutEvent overwrites an existing event record (admin mutation path).
func (s *Store) PutEvent(ctx context.Context, ev *Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.kv.Put(ctx, eventKey(ev.ID), b); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	return nil
}

// GetEvents returns every stored event, unordered beyond key scan order.
// Scope filtering (e.g. "mine") is an ownership concern layered on top by
// the identity package, not something the claim store understands.
func (s *Store) GetEvents(ctx context.Context) ([]*Event, error) {
	keys, err := s.kv.Scan(ctx, "event:", 0)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	events := make([]*Event, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, "event:")
		ev, err := s.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func sortByClaimedAtAsc(claims []*Claim) {
	sort.Slice(claims, func(i, j int) bool { return claims[i].ClaimedAt < claims[j].ClaimedAt })
}
