package identity

import (
	"testing"
	"time"
)

func TestSessionSigner_IssueVerifyRoundTrips(t *testing.T) {
	signer := NewSessionSigner("test-secret", time.Hour)
	actor := Actor{AdminID: "admin-1", Name: "alice", Source: SourceInvite}

	token, err := signer.Issue(actor)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if *got != actor {
		t.Fatalf("expected round-tripped actor %+v, got %+v", actor, *got)
	}
}

func TestSessionSigner_RejectsTokenFromDifferentSecret(t *testing.T) {
	a := NewSessionSigner("secret-a", time.Hour)
	b := NewSessionSigner("secret-b", time.Hour)

	token, err := a.Issue(Actor{AdminID: "admin-1", Source: SourceMaster})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(token); err != ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession across differing secrets, got %v", err)
	}
}

func TestSessionSigner_RejectsExpiredToken(t *testing.T) {
	signer := NewSessionSigner("test-secret", -time.Minute)
	token, err := signer.Issue(Actor{AdminID: "admin-1", Source: SourceMaster})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := signer.Verify(token); err != ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession for an already-expired token, got %v", err)
	}
}

func TestSessionSigner_GeneratesRandomSecretWhenUnconfigured(t *testing.T) {
	signer := NewSessionSigner("", time.Hour)
	token, err := signer.Issue(Actor{AdminID: "admin-1", Source: SourceDemo})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := signer.Verify(token); err != nil {
		t.Fatalf("expected token signed with generated secret to verify, got %v", err)
	}
}
