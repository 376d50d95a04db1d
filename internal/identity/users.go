package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/ILLUVRSE/ledger/internal/canonical"
	"github.com/ILLUVRSE/ledger/internal/kv"
)

// userIDPattern: 3-32 chars, lowercase [a-z0-9._-], first char alphanumeric.
var userIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// ErrInvalidUserID is returned when a userId fails the normalized-format check.
var ErrInvalidUserID = errors.New("invalid user id")

// ErrDuplicateUserID is returned when a userId is already registered.
var ErrDuplicateUserID = errors.New("duplicate user id")

// ErrInvalidPin is returned when a user's pin doesn't match during verification.
var ErrInvalidPin = errors.New("invalid pin")

// ErrUserNotFound is returned when no user is registered under a userId.
var ErrUserNotFound = errors.New("user not found")

const chainGenesis = "GENESIS"

func userKey(userID string) string         { return "user:" + userID }
func userIndexKey(userIDHash string) string { return "user_id_index:" + userIDHash }

const userChainHeadKey = "user_id_chain:last_hash"

// User is a registered participant identity.
type User struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PinHash     string `json:"pinHash"`
	CreatedAt   string `json:"createdAt"`
}

// Users owns user registration and the user-id registration chain,
// serialized under userIdRegistrationLock.
type Users struct {
	kv kv.Store
	mu sync.Mutex
}

// NewUsers constructs a Users store over the given kv.Store.
func NewUsers(store kv.Store) *Users {
	return &Users{kv: store}
}

func hashPin(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

func hashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// Register validates userId's format, enforces global uniqueness, and
// appends one entry to the user-id registration chain atomically with
// persisting the new User record.
func (u *Users) Register(ctx context.Context, userID, displayName, pin string) (*User, error) {
	if !userIDPattern.MatchString(userID) {
		return nil, ErrInvalidUserID
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, err := u.kv.Get(ctx, userKey(userID)); err == nil {
		return nil, ErrDuplicateUserID
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("check existing user %s: %w", userID, err)
	}

	userIDHash := hashUserID(userID)
	if _, err := u.kv.Get(ctx, userIndexKey(userIDHash)); err == nil {
		return nil, ErrDuplicateUserID
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("check user id index %s: %w", userIDHash, err)
	}

	prevChainHash, err := u.readChainHead(ctx)
	if err != nil {
		return nil, err
	}
	chainHash, err := canonical.HashOf(map[string]interface{}{
		"version":       1,
		"kind":          "user_id_register",
		"userIdHash":    userIDHash,
		"prevChainHash": prevChainHash,
	})
	if err != nil {
		return nil, fmt.Errorf("compute user id chain hash: %w", err)
	}

	user := &User{
		UserID:      userID,
		DisplayName: displayName,
		PinHash:     hashPin(pin),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	if err := u.kv.Put(ctx, userKey(userID), b); err != nil {
		return nil, fmt.Errorf("persist user: %w", err)
	}
	if err := u.kv.Put(ctx, userIndexKey(userIDHash), []byte(userID)); err != nil {
		return nil, fmt.Errorf("persist user id index: %w", err)
	}
	if err := u.kv.Put(ctx, userChainHeadKey, []byte(chainHash)); err != nil {
		return nil, fmt.Errorf("advance user id chain: %w", err)
	}

	return user, nil
}

// Get looks up a registered user by id.
func (u *Users) Get(ctx context.Context, userID string) (*User, error) {
	b, err := u.kv.Get(ctx, userKey(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	var user User
	if err := json.Unmarshal(b, &user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return &user, nil
}

// Verify checks a presented pin against userId's stored pin hash.
func (u *Users) Verify(ctx context.Context, userID, pin string) (*User, error) {
	user, err := u.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.PinHash != hashPin(pin) {
		return nil, ErrInvalidPin
	}
	return user, nil
}

func (u *Users) readChainHead(ctx context.Context) (string, error) {
	v, err := u.kv.Get(ctx, userChainHeadKey)
	if errors.Is(err, kv.ErrNotFound) {
		return chainGenesis, nil
	}
	if err != nil {
		return "", fmt.Errorf("read user id chain head: %w", err)
	}
	return string(v), nil
}
