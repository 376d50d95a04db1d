package pop

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/kv"
)

const protocolVersion byte = 2

// messageLength is the fixed size of the signable message: v(1) + grant(32)
// + claimer(32) + periodIndex(8) + prev(32) + streamPrev(32) + entryHash(32).
// entryHash's own preimage already folds in audit and issuedAt (see
// computePopEntryHash), so the signed message commits to them transitively
// without repeating either field — the layout that reconciles the spec's
// named fields with its stated 169-byte total.
const messageLength = 1 + 32 + 32 + 8 + 32 + 32 + 32

// ErrEventNotPublished is returned when the target event exists but isn't published.
var ErrEventNotPublished = errors.New("event is not published")

var zero32 = make([]byte, 32)

func popGlobalHeadKey(grantB58 string) string { return "pop_chain:lastHash:global:" + grantB58 }
func popStreamHeadKey(grantB58 string) string { return "pop_chain:lastHash:stream:" + grantB58 }
func popHistoryKey(iso, hash string) string   { return fmt.Sprintf("pop_chain:history:%s:%s", iso, hash) }

// ClaimProof is the response to a PoP proof issuance request.
type ClaimProof struct {
	MessageBase64   string `json:"messageBase64"`
	SignatureBase64 string `json:"signatureBase64"`
	AuditHash       string `json:"auditHash"`
	PrevHash        string `json:"prevHash"`
	StreamPrevHash  string `json:"streamPrevHash"`
	EntryHash       string `json:"entryHash"`
	IssuedAt        int64  `json:"issuedAt"`
	Grant           string `json:"grant"`
	Claimer         string `json:"claimer"`
	PeriodIndex     uint64 `json:"periodIndex"`
}

// Service issues PoP claim proofs, serialized under its own lock — the
// dedicated popProofLock, distinct from the audit chain's own writer lock,
// since each issuance performs one audit append internally.
type Service struct {
	kv     kv.Store
	chain  *auditchain.Chain
	events *claims.Store
	signer *Signer

	mu sync.Mutex
}

// NewService constructs a PoP Service.
func NewService(store kv.Store, chain *auditchain.Chain, events *claims.Store, signer *Signer) *Service {
	return &Service{kv: store, chain: chain, events: events, signer: signer}
}

// IssueClaimProof implements §4.F steps 1-7.
func (s *Service) IssueClaimProof(ctx context.Context, eventID, grantB58, claimerB58 string, periodIndex uint64) (*ClaimProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, _, err := s.signer.resolve()
	if err != nil {
		return nil, fmt.Errorf("pop signer: %w", err)
	}

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.State != claims.StatePublished {
		return nil, ErrEventNotPublished
	}

	grant, err := decodeBase58Exact(grantB58, 32)
	if err != nil {
		return nil, fmt.Errorf("grant: %w", err)
	}
	claimer, err := decodeBase58Exact(claimerB58, 32)
	if err != nil {
		return nil, fmt.Errorf("claimer: %w", err)
	}

	prev, err := s.readHead(ctx, popGlobalHeadKey(grantB58))
	if err != nil {
		return nil, err
	}
	streamPrev, err := s.readHead(ctx, popStreamHeadKey(grantB58))
	if err != nil {
		return nil, err
	}

	anchor, err := s.chain.Append(ctx, "POP_CLAIM_PROOF_ANCHOR", auditchain.Actor{Type: "system", ID: "pop"}, "pop:"+eventID,
		map[string]interface{}{
			"grant":       grantB58,
			"claimer":     claimerB58,
			"periodIndex": periodIndex,
		})
	if err != nil {
		return nil, fmt.Errorf("append pop anchor: %w", err)
	}
	auditHashHex := anchor.EntryHash
	audit, err := hex.DecodeString(auditHashHex)
	if err != nil {
		return nil, fmt.Errorf("decode anchor entry hash: %w", err)
	}

	issuedAt := time.Now().UnixMilli() / 1000

	periodIndexLE := make([]byte, 8)
	binary.LittleEndian.PutUint64(periodIndexLE, periodIndex)
	issuedAtLE := make([]byte, 8)
	binary.LittleEndian.PutUint64(issuedAtLE, uint64(issuedAt))

	entryHash := computePopEntryHash(prev, streamPrev, audit, grant, claimer, periodIndexLE, issuedAtLE)
	entryHashHex := hex.EncodeToString(entryHash)

	iso := time.Now().UTC().Format(time.RFC3339Nano)
	history := map[string]interface{}{
		"grant":          grantB58,
		"claimer":        claimerB58,
		"periodIndex":    periodIndex,
		"prevHash":       hex.EncodeToString(prev),
		"streamPrevHash": hex.EncodeToString(streamPrev),
		"auditHash":      auditHashHex,
		"entryHash":      entryHashHex,
		"issuedAt":       issuedAt,
	}
	b, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal pop history record: %w", err)
	}

	if err := s.kv.Put(ctx, popGlobalHeadKey(grantB58), []byte(entryHashHex)); err != nil {
		return nil, fmt.Errorf("advance pop global head: %w", err)
	}
	if err := s.kv.Put(ctx, popStreamHeadKey(grantB58), []byte(entryHashHex)); err != nil {
		return nil, fmt.Errorf("advance pop stream head: %w", err)
	}
	if err := s.kv.Put(ctx, popHistoryKey(iso, entryHashHex), b); err != nil {
		return nil, fmt.Errorf("persist pop history: %w", err)
	}

	message := make([]byte, 0, messageLength)
	message = append(message, protocolVersion)
	message = append(message, grant...)
	message = append(message, claimer...)
	message = append(message, periodIndexLE...)
	message = append(message, prev...)
	message = append(message, streamPrev...)
	message = append(message, entryHash...)
	if len(message) != messageLength {
		return nil, fmt.Errorf("internal error: pop message length %d, want %d", len(message), messageLength)
	}

	sig := ed25519.Sign(priv, message)

	return &ClaimProof{
		MessageBase64:   base64.StdEncoding.EncodeToString(message),
		SignatureBase64: base64.StdEncoding.EncodeToString(sig),
		AuditHash:       auditHashHex,
		PrevHash:        hex.EncodeToString(prev),
		StreamPrevHash:  hex.EncodeToString(streamPrev),
		EntryHash:       entryHashHex,
		IssuedAt:        issuedAt,
		Grant:           grantB58,
		Claimer:         claimerB58,
		PeriodIndex:     periodIndex,
	}, nil
}

// computePopEntryHash implements entryHash = SHA-256("we-ne:pop:v2" || prev
// || streamPrev || audit || grant || claimer || periodIndex_u64LE ||
// issuedAt_i64LE).
func computePopEntryHash(prev, streamPrev, audit, grant, claimer, periodIndexLE, issuedAtLE []byte) []byte {
	h := sha256.New()
	h.Write([]byte("we-ne:pop:v2"))
	h.Write(prev)
	h.Write(streamPrev)
	h.Write(audit)
	h.Write(grant)
	h.Write(claimer)
	h.Write(periodIndexLE)
	h.Write(issuedAtLE)
	return h.Sum(nil)
}

// readHead returns the stored head for key as 32 raw bytes, or the all-zero
// sentinel if absent or explicitly "GENESIS".
func (s *Service) readHead(ctx context.Context, key string) ([]byte, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return zero32, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pop head %s: %w", key, err)
	}
	str := string(v)
	if str == "GENESIS" {
		return zero32, nil
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("decode pop head %s: %w", key, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("pop head %s has unexpected length %d", key, len(b))
	}
	return b, nil
}
