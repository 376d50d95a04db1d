package sinks

import "context"

// ObjectStore is the write-if-absent-or-verify capability the fan-out uses
// for durable, tamper-evident archival. S3Store is the production binding;
// tests use an in-memory fake.
type ObjectStore interface {
	// PutIfAbsent writes body under key unless the key already exists, in
	// which case it fetches the existing object and the caller must compare
	// bytes itself (kept simple and explicit rather than hiding the compare
	// inside the store).
	PutIfAbsent(ctx context.Context, key string, body []byte, metadata map[string]string) (existingBody []byte, existed bool, err error)
}

// KVIndex is a best-effort single-put capability, e.g. Redis.
type KVIndex interface {
	Put(ctx context.Context, key string, value []byte) error
}

// Ingest is the HTTP ingest capability: POST a JSON envelope with bearer auth
// and a few diagnostic headers, returning a receipt ref on success.
type Ingest interface {
	Post(ctx context.Context, payloadHash string, entryHash string, body []byte) (ref string, err error)
}

// Relay is the optional, non-authoritative fourth fan-out target (§4.K):
// best-effort publication of the audit envelope for external consumers.
// It never counts toward sink acceptance and failures are only logged.
type Relay interface {
	Publish(ctx context.Context, key []byte, value []byte) error
}

// SinkRef records one sink's acceptance of an entry.
type SinkRef struct {
	Sink string `json:"sink"`
	Ref  string `json:"ref"`
	At   string `json:"at"`
}

// ImmutableReceipt is evidence that an audit entry's canonical payload was
// accepted by one or more external sinks.
type ImmutableReceipt struct {
	Mode        string    `json:"mode"`
	PayloadHash string    `json:"payload_hash"`
	Sinks       []SinkRef `json:"sinks"`
	Warnings    []string  `json:"warnings,omitempty"`
}
