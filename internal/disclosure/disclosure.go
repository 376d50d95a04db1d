// Package disclosure builds the role-scoped master/admin view over the
// ledger's operator, event, and transfer data, and its server-side
// inverted-index search. The graph walk and transfer projection are new to
// this domain; the two storage backings behind search (sql_index.go and
// cache.go) are grounded on reasoning-graph/internal/store/store.go's PGStore
// shape and kernel/internal/auth/jwks.go's TTL-cache-with-forced-refresh
// pattern respectively (see SPEC_FULL.md §4.H).
package disclosure

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/identity"
)

// transfer-class audit event names.
const (
	eventUserClaim   = "USER_CLAIM"
	eventWalletClaim = "WALLET_CLAIM"
)

// defaultTransferLimit bounds how many recent audit entries the transfer
// scan walks when no explicit limit is requested.
const defaultTransferLimit = 500

// TransferAuditPayload is the normalized shape of a USER_CLAIM/WALLET_CLAIM
// audit entry, combining a structured data.transfer field when present with
// a legacy fallback built from top-level claim fields.
type TransferAuditPayload struct {
	EventID           string `json:"eventId"`
	SolanaAuthority   string `json:"solanaAuthority,omitempty"`
	SolanaMint        string `json:"solanaMint,omitempty"`
	TicketTokenAmount string `json:"ticketTokenAmount,omitempty"`
	TxSignature       string `json:"txSignature,omitempty"`
	ReceiptPubkey     string `json:"receiptPubkey,omitempty"`
	Recipient         string `json:"recipient,omitempty"`

	// GroupKey is the key related users are grouped by: userId, then
	// walletAddress, then joinToken, then recipient, first non-empty wins.
	GroupKey string `json:"groupKey"`

	// PII fields are stripped from the admin-role view, kept for master.
	PII map[string]interface{} `json:"pii,omitempty"`

	EntryHash string `json:"entryHash"`
	Ts        string `json:"ts"`
}

// EventSummary is an owned-or-inferred event attached to an admin record.
type EventSummary struct {
	EventID string `json:"eventId"`
	State   string `json:"state"`
	Inferred bool  `json:"inferred"`
}

// UserSummary is a related-user group derived from the transfer window.
type UserSummary struct {
	GroupKey  string                  `json:"groupKey"`
	Transfers []TransferAuditPayload  `json:"transfers"`
}

// AdminDisclosure is one admin record with its owned events and related users.
type AdminDisclosure struct {
	AdminID   string          `json:"adminId"`
	Name      string          `json:"name"`
	Source    string          `json:"source"`
	CreatedAt string          `json:"createdAt"`
	Revoked   bool            `json:"revoked"`
	Events    []EventSummary  `json:"events"`
	Users     []UserSummary   `json:"users"`
}

// Graph is the full disclosure graph: one entry per admin invite, each with
// its attached events and related users.
type Graph struct {
	Admins []AdminDisclosure `json:"admins"`
}

// Params controls how the graph is built.
type Params struct {
	IncludeRevoked bool
	TransferLimit  int
}

func (p Params) transferLimit() int {
	if p.TransferLimit <= 0 {
		return defaultTransferLimit
	}
	return p.TransferLimit
}

// Builder assembles the disclosure graph from the operator registry, event
// store, and audit chain.
type Builder struct {
	registry *identity.Registry
	events   *claims.Store
	chain    *auditchain.Chain
}

// NewBuilder constructs a Builder.
func NewBuilder(registry *identity.Registry, events *claims.Store, chain *auditchain.Chain) *Builder {
	return &Builder{registry: registry, events: events, chain: chain}
}

// Build assembles the master-role disclosure graph (full PII included).
// Role-scoping to the admin-redacted view happens separately, in Redact.
func (b *Builder) Build(ctx context.Context, params Params) (*Graph, error) {
	invites, err := b.registry.ListInvites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}

	allEvents, err := b.events.GetEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	transfers, err := b.transferWindow(ctx, params.transferLimit())
	if err != nil {
		return nil, err
	}

	grouped := groupTransfers(transfers)

	graph := &Graph{}
	for _, inv := range invites {
		if inv.RevokedAt != nil && !params.IncludeRevoked {
			continue
		}

		disc := AdminDisclosure{
			AdminID:   inv.AdminID,
			Name:      inv.Name,
			Source:    inv.Source,
			CreatedAt: inv.CreatedAt,
			Revoked:   inv.RevokedAt != nil,
		}

		owned, err := b.ownedEvents(ctx, inv, allEvents)
		if err != nil {
			return nil, err
		}
		disc.Events = owned

		disc.Users = relatedUsers(grouped, disc.Events)

		graph.Admins = append(graph.Admins, disc)
	}

	sort.Slice(graph.Admins, func(i, j int) bool { return graph.Admins[i].AdminID < graph.Admins[j].AdminID })
	return graph, nil
}

// ownedEvents attaches events by explicit ownership link; if none are
// explicitly linked, falls back to inferring ownership from a
// globally-unique match between the event id and the admin's normalized
// name (a host-name-style slug match).
func (b *Builder) ownedEvents(ctx context.Context, inv *identity.AdminCodeRecord, allEvents []*claims.Event) ([]EventSummary, error) {
	var explicit []EventSummary
	for _, ev := range allEvents {
		owner, err := b.registry.GetEventOwner(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.AdminID == inv.AdminID {
			explicit = append(explicit, EventSummary{EventID: ev.ID, State: ev.State})
		}
	}
	if len(explicit) > 0 {
		return explicit, nil
	}

	slug := normalizeForMatch(inv.Name)
	if slug == "" {
		return nil, nil
	}
	var matches []EventSummary
	for _, ev := range allEvents {
		owner, err := b.registry.GetEventOwner(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			continue // already explicitly owned by somebody
		}
		if normalizeForMatch(ev.ID) == slug {
			matches = append(matches, EventSummary{EventID: ev.ID, State: ev.State, Inferred: true})
		}
	}
	if len(matches) == 1 {
		return matches, nil
	}
	// ambiguous or no match: don't guess.
	return nil, nil
}

func normalizeForMatch(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// transferWindow scans the most recent `limit` audit entries and projects
// every USER_CLAIM/WALLET_CLAIM entry into a TransferAuditPayload.
func (b *Builder) transferWindow(ctx context.Context, limit int) ([]TransferAuditPayload, error) {
	entries, err := b.chain.GetRecentAuditLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("scan transfer window: %w", err)
	}
	var out []TransferAuditPayload
	for _, e := range entries {
		if e.Event != eventUserClaim && e.Event != eventWalletClaim {
			continue
		}
		payload, ok := projectTransfer(e)
		if ok {
			out = append(out, payload)
		}
	}
	return out, nil
}

// projectTransfer builds a TransferAuditPayload from a transfer-class audit
// entry, preferring a structured data.transfer object and falling back to
// the legacy top-level field names.
func projectTransfer(e *auditchain.Entry) (TransferAuditPayload, bool) {
	data, ok := e.Data.(map[string]interface{})
	if !ok {
		return TransferAuditPayload{}, false
	}

	payload := TransferAuditPayload{EventID: e.EventID, EntryHash: e.EntryHash, Ts: e.Ts}

	if structured, ok := data["transfer"].(map[string]interface{}); ok {
		payload.SolanaAuthority = stringField(structured, "solanaAuthority")
		payload.SolanaMint = stringField(structured, "solanaMint")
		payload.TicketTokenAmount = stringField(structured, "ticketTokenAmount")
		payload.TxSignature = stringField(structured, "txSignature")
		payload.ReceiptPubkey = stringField(structured, "receiptPubkey")
		payload.Recipient = stringField(structured, "recipient")
	} else {
		payload.SolanaAuthority = firstNonEmpty(stringField(data, "solanaAuthority"), "grant:"+e.EventID)
		payload.SolanaMint = stringField(data, "solanaMint")
		payload.TicketTokenAmount = stringField(data, "ticketTokenAmount")
		payload.TxSignature = stringField(data, "txSignature")
		payload.ReceiptPubkey = stringField(data, "receiptPubkey")
		payload.Recipient = stringField(data, "recipient")
	}

	payload.GroupKey = firstNonEmpty(
		stringField(data, "userId"),
		stringField(data, "walletAddress"),
		stringField(data, "joinToken"),
		payload.Recipient,
	)
	if payload.GroupKey == "" {
		return TransferAuditPayload{}, false
	}

	if pii, ok := data["pii"].(map[string]interface{}); ok {
		payload.PII = pii
	}

	return payload, true
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func groupTransfers(transfers []TransferAuditPayload) map[string][]TransferAuditPayload {
	grouped := make(map[string][]TransferAuditPayload)
	for _, t := range transfers {
		grouped[t.GroupKey] = append(grouped[t.GroupKey], t)
	}
	return grouped
}

// relatedUsers attaches every grouped transfer touching one of the admin's
// owned events.
func relatedUsers(grouped map[string][]TransferAuditPayload, events []EventSummary) []UserSummary {
	owned := make(map[string]bool, len(events))
	for _, e := range events {
		owned[e.EventID] = true
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []UserSummary
	for _, k := range keys {
		var touches []TransferAuditPayload
		for _, t := range grouped[k] {
			if owned[t.EventID] {
				touches = append(touches, t)
			}
		}
		if len(touches) > 0 {
			out = append(out, UserSummary{GroupKey: k, Transfers: touches})
		}
	}
	return out
}

// Redact strips pii from every transfer in graph, producing the admin-role
// view. Master callers should use the graph returned by Build directly.
func Redact(graph *Graph) *Graph {
	redacted := &Graph{Admins: make([]AdminDisclosure, len(graph.Admins))}
	for i, admin := range graph.Admins {
		copyAdmin := admin
		copyAdmin.Users = make([]UserSummary, len(admin.Users))
		for j, u := range admin.Users {
			copyUser := u
			copyUser.Transfers = make([]TransferAuditPayload, len(u.Transfers))
			for k, t := range u.Transfers {
				stripped := t
				stripped.PII = nil
				copyUser.Transfers[k] = stripped
			}
			copyAdmin.Users[j] = copyUser
		}
		redacted.Admins[i] = copyAdmin
	}
	return redacted
}
