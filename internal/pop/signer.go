// Package pop implements the proof-of-participation signer: a second,
// per-grant hash chain independent of the main audit chain, producing
// Ed25519-signed messages that bind off-chain audit state to an on-chain
// witness. Grounded on kernel/internal/signer/signer.go's Signer interface,
// generalized from a randomly generated in-process keypair to one loaded
// from configuration and cross-checked against a known public key.
package pop

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
)

// ErrSignerNotConfigured is returned when no secret key was configured.
var ErrSignerNotConfigured = errors.New("pop signer: POP_SIGNER_SECRET_KEY_B64 not configured")

// Signer loads and caches the PoP Ed25519 keypair. Resolution happens once,
// lazily, on first use; the result — success or failure — is cached for
// the Signer's lifetime, matching the spec's "raise during first use,
// cached thereafter" configuration semantics.
type Signer struct {
	secretKeyB64 string
	pubkeyB58    string

	mu       sync.Mutex
	resolved bool
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	err      error
}

// NewSigner constructs a Signer from raw configuration strings. Either may
// be empty; an empty secret key makes the signer permanently unconfigured,
// and an empty expected pubkey skips the cross-check.
func NewSigner(secretKeyB64, pubkeyB58 string) *Signer {
	return &Signer{secretKeyB64: secretKeyB64, pubkeyB58: pubkeyB58}
}

// Configured reports whether a secret key was supplied at all, without
// triggering key derivation or the pubkey cross-check.
func (s *Signer) Configured() bool {
	return s.secretKeyB64 != ""
}

// resolve derives (or returns the cached) keypair, raising and caching any
// configuration error on first use.
func (s *Signer) resolve() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return s.priv, s.pub, s.err
	}
	s.resolved = true
	s.priv, s.pub, s.err = s.load()
	return s.priv, s.pub, s.err
}

func (s *Signer) load() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if s.secretKeyB64 == "" {
		return nil, nil, ErrSignerNotConfigured
	}

	raw, err := base64.StdEncoding.DecodeString(s.secretKeyB64)
	if err != nil {
		return nil, nil, fmt.Errorf("decode pop signer secret key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, nil, fmt.Errorf("pop signer secret key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	pub := priv.Public().(ed25519.PublicKey)

	if s.pubkeyB58 != "" {
		expected, err := base58.Decode(s.pubkeyB58)
		if err != nil {
			return nil, nil, fmt.Errorf("decode pop signer pubkey: %w", err)
		}
		if len(expected) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("pop signer pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(expected))
		}
		if !bytes.Equal(expected, pub) {
			return nil, nil, errors.New("pop signer pubkey mismatch")
		}
	}

	return priv, pub, nil
}

// PublicKeyBase58 resolves the signer and returns its public key, base58
// encoded — the representation the runtime-status endpoint reports.
func (s *Signer) PublicKeyBase58() (string, error) {
	_, pub, err := s.resolve()
	if err != nil {
		return "", err
	}
	return base58.Encode(pub), nil
}

func decodeBase58Exact(s string, n int) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 encoding: %w", err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}
