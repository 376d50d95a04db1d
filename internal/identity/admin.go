// Package identity implements operator authentication (master/demo/invite
// precedence), admin invite lifecycle, event ownership links, and user
// registration's hash-chained uniqueness guarantee. AdminCodeRecord storage
// mirrors kernel/internal/keys/registry.go's in-memory registry shape,
// generalized from a process-local map to a persisted kv.Store record.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/ledger/internal/kv"
)

// Source values for an authenticated operator.
const (
	SourceMaster = "master"
	SourceDemo   = "demo"
	SourceInvite = "invite"
)

// defaultMasterPlaceholder is the shipped default that disables master auth
// until an operator replaces it.
const defaultMasterPlaceholder = "change-this-in-dashboard"

// ErrUnauthorized is returned when no presented credential authenticates.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInviteNotFound is returned when an invite token has no record.
var ErrInviteNotFound = errors.New("invite not found")

// Actor is an authenticated operator.
type Actor struct {
	AdminID string `json:"adminId"`
	Name    string `json:"name"`
	Source  string `json:"source"`
}

// AdminCodeRecord is a persisted invite: active until explicitly revoked,
// never deleted.
type AdminCodeRecord struct {
	AdminID   string  `json:"adminId"`
	Name      string  `json:"name"`
	Source    string  `json:"source"`
	CreatedAt string  `json:"createdAt"`
	RevokedAt *string `json:"revokedAt,omitempty"`
	RevokedBy *string `json:"revokedBy,omitempty"`
}

func (r *AdminCodeRecord) revoked() bool { return r.RevokedAt != nil }

// EventOwnerLink binds an event to the operator who created it.
type EventOwnerLink struct {
	EventID  string `json:"eventId"`
	AdminID  string `json:"adminId"`
	Name     string `json:"name"`
	Source   string `json:"source"`
	LinkedAt string `json:"linkedAt"`
}

func adminCodeKey(token string) string  { return "admin_code:" + token }
func eventOwnerKey(eventID string) string { return "event_owner:" + eventID }

// Registry owns operator authentication, invite lifecycle, and event
// ownership over the shared kv keyspace.
type Registry struct {
	kv              kv.Store
	masterPassword  string
	demoPassword    string
}

// NewRegistry constructs a Registry. masterPassword and demoPassword come
// directly from ADMIN_PASSWORD / ADMIN_DEMO_PASSWORD.
func NewRegistry(store kv.Store, masterPassword, demoPassword string) *Registry {
	return &Registry{kv: store, masterPassword: masterPassword, demoPassword: demoPassword}
}

// MasterConfigured reports whether ADMIN_PASSWORD is set and isn't the
// shipped placeholder — the §4.J runtime-status "adminPasswordConfigured" check.
func (r *Registry) MasterConfigured() bool {
	return r.masterPassword != "" && r.masterPassword != defaultMasterPlaceholder
}

// Authenticate resolves a presented credential to an Actor following the
// master → demo → invite precedence. A revoked invite is unauthorized, not
// merely absent.
func (r *Registry) Authenticate(ctx context.Context, presented string) (*Actor, error) {
	if presented == "" {
		return nil, ErrUnauthorized
	}
	if r.MasterConfigured() && presented == r.masterPassword {
		return &Actor{AdminID: "master", Name: "master", Source: SourceMaster}, nil
	}
	if r.demoPassword != "" && presented == r.demoPassword {
		return &Actor{AdminID: "demo", Name: "demo", Source: SourceDemo}, nil
	}

	rec, err := r.GetInvite(ctx, presented)
	if errors.Is(err, ErrInviteNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if rec.revoked() {
		return nil, ErrUnauthorized
	}
	return &Actor{AdminID: rec.AdminID, Name: rec.Name, Source: SourceInvite}, nil
}

// GenerateInvite creates a fresh admin invite token and adminId. Master only
// (enforced by the caller — the registry itself doesn't gate by role).
func (r *Registry) GenerateInvite(ctx context.Context, name string) (token string, rec *AdminCodeRecord, err error) {
	token = strings.ReplaceAll(uuid.New().String(), "-", "")
	rec = &AdminCodeRecord{
		AdminID:   uuid.New().String(),
		Name:      name,
		Source:    SourceInvite,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.putInvite(ctx, token, rec); err != nil {
		return "", nil, err
	}
	return token, rec, nil
}

// RenameInvite updates an invite's display name.
func (r *Registry) RenameInvite(ctx context.Context, token, name string) error {
	rec, err := r.GetInvite(ctx, token)
	if err != nil {
		return err
	}
	rec.Name = name
	return r.putInvite(ctx, token, rec)
}

// RevokeInvite sets revokedAt/revokedBy; the record is never deleted.
func (r *Registry) RevokeInvite(ctx context.Context, token, revokedBy string) error {
	rec, err := r.GetInvite(ctx, token)
	if err != nil {
		return err
	}
	if rec.revoked() {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rec.RevokedAt = &now
	rec.RevokedBy = &revokedBy
	return r.putInvite(ctx, token, rec)
}

// GetInvite looks up an invite record by its token.
func (r *Registry) GetInvite(ctx context.Context, token string) (*AdminCodeRecord, error) {
	b, err := r.kv.Get(ctx, adminCodeKey(token))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invite %s: %w", token, err)
	}
	var rec AdminCodeRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode invite %s: %w", token, err)
	}
	return &rec, nil
}

// ListInvites scans every persisted invite record, revoked or active.
func (r *Registry) ListInvites(ctx context.Context) ([]*AdminCodeRecord, error) {
	keys, err := r.kv.Scan(ctx, "admin_code:", 0)
	if err != nil {
		return nil, fmt.Errorf("scan invites: %w", err)
	}
	out := make([]*AdminCodeRecord, 0, len(keys))
	for _, k := range keys {
		token := strings.TrimPrefix(k, "admin_code:")
		rec, err := r.GetInvite(ctx, token)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Registry) putInvite(ctx context.Context, token string, rec *AdminCodeRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal invite: %w", err)
	}
	if err := r.kv.Put(ctx, adminCodeKey(token), b); err != nil {
		return fmt.Errorf("persist invite: %w", err)
	}
	return nil
}

// RecordEventOwner persists the immutable event_owner link created at event
// creation time.
func (r *Registry) RecordEventOwner(ctx context.Context, eventID string, actor Actor) error {
	link := &EventOwnerLink{
		EventID:  eventID,
		AdminID:  actor.AdminID,
		Name:     actor.Name,
		Source:   actor.Source,
		LinkedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal event owner link: %w", err)
	}
	if err := r.kv.Put(ctx, eventOwnerKey(eventID), b); err != nil {
		return fmt.Errorf("persist event owner link: %w", err)
	}
	return nil
}

// GetEventOwner looks up the owner link for an event, or nil if the event
// predates ownership tracking or was never linked.
func (r *Registry) GetEventOwner(ctx context.Context, eventID string) (*EventOwnerLink, error) {
	b, err := r.kv.Get(ctx, eventOwnerKey(eventID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event owner %s: %w", eventID, err)
	}
	var link EventOwnerLink
	if err := json.Unmarshal(b, &link); err != nil {
		return nil, fmt.Errorf("decode event owner %s: %w", eventID, err)
	}
	return &link, nil
}

// CanAccessEvent reports whether actor may operate on an event given its
// owner link (nil owner means unowned — no admin-scoped access). Master may
// access every event regardless of ownership.
func CanAccessEvent(owner *EventOwnerLink, actor Actor) bool {
	if actor.Source == SourceMaster {
		return true
	}
	return owner != nil && owner.AdminID == actor.AdminID
}

// FilterMine filters eventIDs down to those owned by actor — the
// `scope=mine` events-list behavior.
func (r *Registry) FilterMine(ctx context.Context, actor Actor, eventIDs []string) ([]string, error) {
	if actor.Source == SourceMaster {
		return eventIDs, nil
	}
	mine := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		owner, err := r.GetEventOwner(ctx, id)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.AdminID == actor.AdminID {
			mine = append(mine, id)
		}
	}
	return mine, nil
}
