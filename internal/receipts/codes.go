// Package receipts implements confirmation-code reservation and the
// ParticipationReceipt lifecycle (build, persist, verify), grounded on
// kernel/internal/audit's NewUUID-style single-purpose ID helpers and
// signer.go's crypto/rand usage, generalized from a UUID draw to the
// 6-character Crockford-like alphabet this system's codes use.
package receipts

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ILLUVRSE/ledger/internal/kv"
)

// codeAlphabet excludes visually ambiguous characters (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6
const maxDrawAttempts = 128

// ErrCodeExhausted is returned when 128 draws all collide.
var ErrCodeExhausted = errors.New("failed to generate unique confirmation code")

// CodeGenerator draws one candidate confirmation code.
type CodeGenerator func() (string, error)

func defaultCodeGenerator() (string, error) {
	raw := make([]byte, codeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, codeLength)
	for i, v := range raw {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return string(out), nil
}

type confirmationCodeRecord struct {
	Code     string `json:"code"`
	EventID  string `json:"eventId"`
	Subject  string `json:"subject"`
	IssuedAt string `json:"issuedAt"`
}

func confirmationCodeIndexKey(code string) string {
	return "confirmation_code_index:" + code
}

// CodeReservation owns confirmation-code uniqueness: draw-and-retry,
// release on failed claims, and idempotent re-indexing.
type CodeReservation struct {
	kv        kv.Store
	scanLimit int
	draw      CodeGenerator

	mu sync.Mutex
}

// NewCodeReservation constructs a CodeReservation. scanLimit bounds the
// legacy ticket_receipt: scan used to seed the used-codes set.
func NewCodeReservation(store kv.Store, scanLimit int) *CodeReservation {
	if scanLimit <= 0 {
		scanLimit = 500
	}
	return &CodeReservation{kv: store, scanLimit: scanLimit, draw: defaultCodeGenerator}
}

// SetGenerator overrides the draw function — used by tests to stub the RNG.
func (c *CodeReservation) SetGenerator(g CodeGenerator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draw = g
}

// legacyUsedCodes scans the bounded ticket_receipt: keyspace to build a set
// of codes already bound to a receipt before this reservation's own index
// existed or in case the index and receipts ever drifted.
func (c *CodeReservation) legacyUsedCodes(ctx context.Context) (map[string]bool, error) {
	keys, err := c.kv.Scan(ctx, "ticket_receipt:", c.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan legacy receipts: %w", err)
	}
	used := make(map[string]bool, len(keys))
	for _, k := range keys {
		parts := strings.Split(k, ":")
		if len(parts) >= 3 {
			used[parts[len(parts)-1]] = true
		}
	}
	return used, nil
}

// Reserve draws up to 128 candidate codes, rejecting any already present in
// confirmation_code_index or the legacy used-codes set, and persists the
// first unused draw atomically via PutIfAbsent.
func (c *CodeReservation) Reserve(ctx context.Context, eventID, subject string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	legacy, err := c.legacyUsedCodes(ctx)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxDrawAttempts; attempt++ {
		code, err := c.draw()
		if err != nil {
			return "", fmt.Errorf("draw confirmation code: %w", err)
		}
		if legacy[code] {
			continue
		}

		rec := confirmationCodeRecord{
			Code:     code,
			EventID:  eventID,
			Subject:  subject,
			IssuedAt: time.Now().UTC().Format(time.RFC3339Nano),
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("marshal confirmation code record: %w", err)
		}
		ok, err := c.kv.PutIfAbsent(ctx, confirmationCodeIndexKey(code), b)
		if err != nil {
			return "", fmt.Errorf("reserve confirmation code: %w", err)
		}
		if ok {
			return code, nil
		}
	}

	return "", ErrCodeExhausted
}

// Release deletes the index entry for code, but only if it still maps to
// (eventId, subject) — a failed claim must not release a code another
// successful claim is already using.
func (c *CodeReservation) Release(ctx context.Context, eventID, subject, code string) error {
	b, err := c.kv.Get(ctx, confirmationCodeIndexKey(code))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get confirmation code record: %w", err)
	}
	var rec confirmationCodeRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return fmt.Errorf("decode confirmation code record: %w", err)
	}
	if rec.EventID != eventID || rec.Subject != subject {
		return nil
	}
	return c.kv.Delete(ctx, confirmationCodeIndexKey(code))
}

// EnsureIndexed idempotently makes sure code is present in the index for
// (eventId, subject); a no-op if already indexed.
func (c *CodeReservation) EnsureIndexed(ctx context.Context, eventID, subject, code string) error {
	_, err := c.kv.Get(ctx, confirmationCodeIndexKey(code))
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("get confirmation code record: %w", err)
	}

	rec := confirmationCodeRecord{
		Code:     code,
		EventID:  eventID,
		Subject:  subject,
		IssuedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal confirmation code record: %w", err)
	}
	_, err = c.kv.PutIfAbsent(ctx, confirmationCodeIndexKey(code), b)
	return err
}
