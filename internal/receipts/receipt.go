package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/canonical"
	"github.com/ILLUVRSE/ledger/internal/kv"
	"github.com/ILLUVRSE/ledger/internal/sinks"
)

// AuditRef is the slice of an audit entry a receipt anchors to.
type AuditRef struct {
	EntryHash            string          `json:"entryHash"`
	PrevHash             string          `json:"prevHash"`
	StreamPrevHash       string          `json:"streamPrevHash"`
	EventID              string          `json:"eventId"`
	Ts                   string          `json:"ts"`
	ImmutablePayloadHash string          `json:"immutablePayloadHash,omitempty"`
	ImmutableSinks       []sinks.SinkRef `json:"immutableSinks,omitempty"`
	ImmutableMode        string          `json:"immutableMode,omitempty"`
}

// ParticipationReceipt is the tamper-evident proof of attendance handed back
// to a claimant, bound to the audit entry that recorded their claim.
type ParticipationReceipt struct {
	Version            int      `json:"version"`
	Type               string   `json:"type"`
	ReceiptID          string   `json:"receiptId"`
	ReceiptHash        string   `json:"receiptHash"`
	IssuedAt           string   `json:"issuedAt"`
	ConfirmationCode   string   `json:"confirmationCode"`
	SubjectCommitment  string   `json:"subjectCommitment"`
	VerifyEndpoint     string   `json:"verifyEndpoint"`
	Audit              AuditRef `json:"audit"`
}

const receiptType = "participation_audit_receipt"

// BuildReceipt constructs a ParticipationReceipt bound to entry. receiptId
// is the entry's own entry_hash, and receiptHash covers every other field.
func BuildReceipt(entry *auditchain.Entry, eventID, subject, confirmationCode, verifyEndpoint string) (*ParticipationReceipt, error) {
	subjectCommitment, err := canonical.HashOf(map[string]interface{}{
		"version": 1,
		"eventId": eventID,
		"subject": subject,
	})
	if err != nil {
		return nil, fmt.Errorf("compute subject commitment: %w", err)
	}

	r := &ParticipationReceipt{
		Version:           1,
		Type:              receiptType,
		ReceiptID:         entry.EntryHash,
		IssuedAt:          time.Now().UTC().Format(time.RFC3339Nano),
		ConfirmationCode:  confirmationCode,
		SubjectCommitment: subjectCommitment,
		VerifyEndpoint:    verifyEndpoint,
		Audit: AuditRef{
			EntryHash:      entry.EntryHash,
			PrevHash:       entry.PrevHash,
			StreamPrevHash: entry.StreamPrevHash,
			EventID:        entry.EventID,
			Ts:             entry.Ts,
		},
	}
	if entry.Immutable != nil {
		r.Audit.ImmutablePayloadHash = entry.Immutable.PayloadHash
		r.Audit.ImmutableSinks = entry.Immutable.Sinks
		r.Audit.ImmutableMode = entry.Immutable.Mode
	}

	hash, err := hashReceipt(r)
	if err != nil {
		return nil, fmt.Errorf("hash receipt: %w", err)
	}
	r.ReceiptHash = hash
	return r, nil
}

// hashReceipt hashes the canonical JSON of r with receiptHash excluded.
func hashReceipt(r *ParticipationReceipt) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return "", err
	}
	delete(m, "receiptHash")
	return canonical.HashOf(m)
}

func ticketReceiptKey(eventID, code string) string {
	return fmt.Sprintf("ticket_receipt:%s:%s", eventID, code)
}

func ticketReceiptSubjectKey(eventID, subject string) string {
	return fmt.Sprintf("ticket_receipt_subject:%s:%s", eventID, subject)
}

// Store persists and retrieves ParticipationReceipts over the shared kv
// keyspace, keyed both by confirmation code and by claiming subject.
type Store struct {
	kv kv.Store
}

// NewStore constructs a receipt Store over the given kv.Store.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// Persist writes r under both its code key and its subject key.
func (s *Store) Persist(ctx context.Context, eventID, subject string, r *ParticipationReceipt) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	if err := s.kv.Put(ctx, ticketReceiptKey(eventID, r.ConfirmationCode), b); err != nil {
		return fmt.Errorf("persist receipt by code: %w", err)
	}
	if err := s.kv.Put(ctx, ticketReceiptSubjectKey(eventID, subject), b); err != nil {
		return fmt.Errorf("persist receipt by subject: %w", err)
	}
	return nil
}

// GetByCode looks up a receipt by (eventId, confirmationCode).
func (s *Store) GetByCode(ctx context.Context, eventID, code string) (*ParticipationReceipt, error) {
	return s.get(ctx, ticketReceiptKey(eventID, code))
}

// GetBySubject looks up a receipt by (eventId, subject).
func (s *Store) GetBySubject(ctx context.Context, eventID, subject string) (*ParticipationReceipt, error) {
	return s.get(ctx, ticketReceiptSubjectKey(eventID, subject))
}

func (s *Store) get(ctx context.Context, key string) (*ParticipationReceipt, error) {
	b, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var r ParticipationReceipt
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode receipt %s: %w", key, err)
	}
	return &r, nil
}
