// Package kv provides the namespaced key/value storage abstraction every
// other ledger component is built on, in the same spirit as
// kernel/internal/audit's Store interface: one minimal persistence contract,
// an in-memory implementation for dev/testing, and a Postgres-backed
// implementation for production.
//
// Every key used by the ledger lives in one flat keyspace with ":"-separated
// namespace prefixes (event:, claim:, user:, audit:lastHash:*, pop_chain:*,
// and so on) — kv itself is namespace-agnostic, it just stores bytes under
// string keys.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal persistence abstraction the ledger shard uses.
// All values are opaque bytes; callers canonical-JSON-encode or decode
// their own structures around it.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes value at key unconditionally, creating or overwriting it.
	Put(ctx context.Context, key string, value []byte) error

	// PutIfAbsent writes value at key only if it does not already exist.
	// It returns ok=false without error if the key was already present.
	PutIfAbsent(ctx context.Context, key string, value []byte) (ok bool, err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan returns every key with the given prefix, in lexicographic order.
	// Used by history listings and the legacy confirmation-code scan.
	Scan(ctx context.Context, prefix string, limit int) ([]string, error)

	// Ping verifies the store is reachable/healthy.
	Ping(ctx context.Context) error
}
