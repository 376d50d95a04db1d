package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ILLUVRSE/ledger/internal/kv"
)

// Claim is one successful ticket claim for an (eventId, subject) pair.
type Claim struct {
	EventID          string `json:"eventId"`
	Subject          string `json:"subject"`
	ClaimedAt        int64  `json:"claimedAt"` // epoch milliseconds
	ConfirmationCode string `json:"confirmationCode,omitempty"`
}

// ErrNotEligible is returned when the event is not in the published state.
var ErrNotEligible = errors.New("eligibility")

// ErrWalletRequired is returned when neither a wallet address nor a join
// token was supplied.
var ErrWalletRequired = errors.New("wallet_required")

var whitespaceRun = regexp.MustCompile(`\s+`)

func claimKey(eventID, subject string) string {
	return fmt.Sprintf("claim:%s:%s", eventID, subject)
}

// normalizeSubject prefers a trimmed wallet address, falling back to a
// trimmed join token; internal whitespace runs collapse to a single space.
func normalizeSubject(walletAddress, joinToken string) string {
	raw := strings.TrimSpace(walletAddress)
	if raw == "" {
		raw = strings.TrimSpace(joinToken)
	}
	if raw == "" {
		return ""
	}
	return whitespaceRun.ReplaceAllString(raw, " ")
}

// claimHistory is the full list of successful claims recorded for one
// (eventId, subject) pair, oldest first — the storage contract only names
// one key per pair, so repeat eligible claims within separate rate windows
// accumulate here rather than each getting their own key.
func (s *Store) claimHistory(ctx context.Context, eventID, subject string) ([]*Claim, error) {
	b, err := s.kv.Get(ctx, claimKey(eventID, subject))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get claim history %s/%s: %w", eventID, subject, err)
	}
	var claims []*Claim
	if err := json.Unmarshal(b, &claims); err != nil {
		return nil, fmt.Errorf("decode claim history %s/%s: %w", eventID, subject, err)
	}
	return claims, nil
}

func (s *Store) putClaimHistory(ctx context.Context, eventID, subject string, claims []*Claim) error {
	b, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("marshal claim history: %w", err)
	}
	if err := s.kv.Put(ctx, claimKey(eventID, subject), b); err != nil {
		return fmt.Errorf("persist claim history: %w", err)
	}
	return nil
}

// HasClaimed reports whether subject has any recorded claim on eventId.
func (s *Store) HasClaimed(ctx context.Context, eventID, subject string) (bool, error) {
	claims, err := s.claimHistory(ctx, eventID, subject)
	if err != nil {
		return false, err
	}
	return len(claims) > 0, nil
}

// GetClaimRecord returns the most recent claim for (eventId, subject), or
// nil if none exists.
func (s *Store) GetClaimRecord(ctx context.Context, eventID, subject string) (*Claim, error) {
	claims, err := s.claimHistory(ctx, eventID, subject)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, nil
	}
	return claims[len(claims)-1], nil
}

// SetLatestClaimConfirmationCode overwrites the confirmation code on the
// most recent claim for (eventId, subject); used when a receipt is rebuilt
// for an already-joined subject.
func (s *Store) SetLatestClaimConfirmationCode(ctx context.Context, eventID, subject, code string) error {
	claims, err := s.claimHistory(ctx, eventID, subject)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return fmt.Errorf("no claim recorded for %s/%s", eventID, subject)
	}
	claims[len(claims)-1].ConfirmationCode = code
	return s.putClaimHistory(ctx, eventID, subject, claims)
}

// GetClaimants returns one entry per subject that has claimed eventId —
// their first successful claim — sorted by ascending claimedAt.
func (s *Store) GetClaimants(ctx context.Context, eventID string) ([]*Claim, error) {
	keys, err := s.kv.Scan(ctx, fmt.Sprintf("claim:%s:", eventID), 0)
	if err != nil {
		return nil, fmt.Errorf("scan claimants for %s: %w", eventID, err)
	}
	claimants := make([]*Claim, 0, len(keys))
	for _, k := range keys {
		b, err := s.kv.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("get claimant record %s: %w", k, err)
		}
		var history []*Claim
		if err := json.Unmarshal(b, &history); err != nil {
			return nil, fmt.Errorf("decode claimant record %s: %w", k, err)
		}
		if len(history) > 0 {
			claimants = append(claimants, history[0])
		}
	}
	sortByClaimedAtAsc(claimants)
	return claimants, nil
}

// SubmitResult is the outcome of SubmitClaim.
type SubmitResult struct {
	AlreadyJoined    bool
	ConfirmationCode string
	Claim            *Claim
}

// SubmitClaim implements the §4.D rate-window eligibility check. The caller
// is responsible for reserving confirmationCode before calling (the
// receipts service owns confirmation-code uniqueness); SubmitClaim only
// decides whether a new claim is permitted and, if so, records it.
func (s *Store) SubmitClaim(ctx context.Context, eventID, walletAddress, joinToken, confirmationCode string, now time.Time) (*SubmitResult, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.State != StatePublished {
		return nil, ErrNotEligible
	}

	subject := normalizeSubject(walletAddress, joinToken)
	if subject == "" {
		return nil, ErrWalletRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.claimHistory(ctx, eventID, subject)
	if err != nil {
		return nil, err
	}

	windowStart := now.Add(-time.Duration(event.ClaimIntervalDays) * 24 * time.Hour).UnixMilli()
	count := 0
	for _, c := range history {
		if c.ClaimedAt >= windowStart {
			count++
		}
	}

	if event.MaxClaimsPerInterval != nil && count >= *event.MaxClaimsPerInterval {
		var existing *Claim
		if len(history) > 0 {
			existing = history[len(history)-1]
		}
		code := ""
		if existing != nil {
			code = existing.ConfirmationCode
		}
		return &SubmitResult{AlreadyJoined: true, ConfirmationCode: code, Claim: existing}, nil
	}

	claim := &Claim{
		EventID:          eventID,
		Subject:          subject,
		ClaimedAt:        now.UnixMilli(),
		ConfirmationCode: confirmationCode,
	}
	history = append(history, claim)
	if err := s.putClaimHistory(ctx, eventID, subject, history); err != nil {
		return nil, err
	}

	return &SubmitResult{AlreadyJoined: false, ConfirmationCode: confirmationCode, Claim: claim}, nil
}
