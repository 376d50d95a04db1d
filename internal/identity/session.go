package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ILLUVRSE/ledger/internal/logging"
)

var sessionLog = logging.New("identity.session")

const sessionIssuer = "ledger"

// ErrInvalidSession is returned by Verify for any malformed,
// unsigned, or expired token — callers fall through to the raw
// master/demo/invite check rather than failing the request outright.
var ErrInvalidSession = errors.New("invalid session token")

// sessionClaims is the operator session token payload.
type sessionClaims struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	jwt.RegisteredClaims
}

// SessionSigner issues and verifies short-lived HS256 operator session
// tokens — a bearer convenience layered in front of the master/demo/invite
// auth precedence, not a replacement for it.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionSigner builds a SessionSigner. If configuredSecret is empty, a
// random per-process key is generated — tokens then do not survive a
// restart, which is logged as a warning.
func NewSessionSigner(configuredSecret string, ttl time.Duration) *SessionSigner {
	if ttl == 0 {
		ttl = time.Hour
	}
	if configuredSecret != "" {
		return &SessionSigner{secret: []byte(configuredSecret), ttl: ttl}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("identity: generate session secret: %v", err))
	}
	sessionLog.Println("warning: ADMIN_SESSION_SECRET not set; generated a random per-process key, sessions will not survive a restart")
	return &SessionSigner{secret: key, ttl: ttl}
}

// Issue signs a session token for an authenticated Actor.
func (s *SessionSigner) Issue(actor Actor) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Name:   actor.Name,
		Source: actor.Source,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.AdminID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning the Actor it
// asserts. Any failure — bad signature, wrong issuer, expiry — collapses to
// ErrInvalidSession.
func (s *SessionSigner) Verify(tokenString string) (*Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok {
		return nil, ErrInvalidSession
	}
	return &Actor{AdminID: claims.Subject, Name: claims.Name, Source: claims.Source}, nil
}
