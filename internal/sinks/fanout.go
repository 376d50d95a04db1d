// Package sinks implements the Immutable Sink Fan-out (spec §4.B): writing
// an audit entry's canonical payload to zero or more external, append-only
// stores and producing an ImmutableReceipt describing what accepted it.
package sinks

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"context"

	"github.com/ILLUVRSE/ledger/internal/canonical"
	"github.com/ILLUVRSE/ledger/internal/logging"
)

var log = logging.New("sinks.fanout")

// ErrSinkNotConfigured is returned in required mode when no primary sink is bound.
var ErrSinkNotConfigured = errors.New("immutable audit sink is not configured")

// ErrConflict is returned when an object-store write-if-absent finds a
// byte-different payload already stored under the same key — evidence of
// external tampering.
var ErrConflict = errors.New("immutable conflict detected")

// ErrNoSinkAccepted is returned when the fan-out ran but no r2_entry or
// immutable_ingest sink accepted the entry.
var ErrNoSinkAccepted = errors.New("no immutable sink accepted this entry")

// Fanout owns the optional sink bindings and dispatches entries to them.
type Fanout struct {
	ObjectStore ObjectStore // "primary" sink candidate #1
	KVIndex     KVIndex
	Ingest      Ingest // "primary" sink candidate #2
	Relay       Relay  // optional, non-authoritative
	Source      string
}

// HasPrimary reports whether a primary sink (object store or HTTP ingest) is bound.
func (f *Fanout) HasPrimary() bool {
	return f != nil && (f.ObjectStore != nil || f.Ingest != nil)
}

// DispatchParams carries everything the fan-out needs to build and route a payload.
type DispatchParams struct {
	EntryHash      string
	EventID        string
	Ts             string
	PrevHash       string
	StreamPrevHash string
	Entry          interface{}
	Mode           Mode
}

// Dispatch runs the fan-out algorithm from §4.B and returns the resulting
// receipt, or an error when mode=required and the fan-out could not
// guarantee durability.
func (f *Fanout) Dispatch(ctx context.Context, p DispatchParams) (*ImmutableReceipt, error) {
	if p.Mode == ModeOff {
		return nil, nil
	}

	envelope := map[string]interface{}{
		"version": 1,
		"source":  f.Source,
		"entry":   p.Entry,
	}
	payloadHash, err := canonical.HashOf(envelope)
	if err != nil {
		return nil, fmt.Errorf("canonicalize immutable envelope: %w", err)
	}
	payloadBytes, err := canonical.MarshalCanonical(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal immutable envelope: %w", err)
	}

	if !f.HasPrimary() {
		if p.Mode == ModeRequired {
			return nil, ErrSinkNotConfigured
		}
		return &ImmutableReceipt{
			Mode:     p.Mode.String(),
			Warnings: []string{ErrSinkNotConfigured.Error()},
		}, nil
	}

	var (
		refs       []SinkRef
		warnings   []string
		blockErr   error
		acceptedR2 bool
	)
	now := func() string { return time.Now().UTC().Format(time.RFC3339Nano) }

	if f.ObjectStore != nil {
		entryKey := fmt.Sprintf("audit/immutable/entry/%s.json", p.EntryHash)
		existing, existed, err := f.ObjectStore.PutIfAbsent(ctx, entryKey, payloadBytes, map[string]string{
			"event_id":     p.EventID,
			"entry_hash":   p.EntryHash,
			"payload_hash": payloadHash,
		})
		if err != nil {
			blockErr = fmt.Errorf("object store entry write: %w", err)
		} else if existed && !bytes.Equal(existing, payloadBytes) {
			blockErr = ErrConflict
		} else {
			refs = append(refs, SinkRef{Sink: "r2_entry", Ref: entryKey, At: now()})
			acceptedR2 = true

			streamKey := fmt.Sprintf("audit/immutable/stream/%s/%s_%s.json",
				url.QueryEscape(p.EventID), sanitizeTs(p.Ts), p.EntryHash)
			sExisting, sExisted, err := f.ObjectStore.PutIfAbsent(ctx, streamKey, payloadBytes, map[string]string{
				"event_id":     p.EventID,
				"entry_hash":   p.EntryHash,
				"payload_hash": payloadHash,
			})
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("object store stream write: %v", err))
			} else if sExisted && !bytes.Equal(sExisting, payloadBytes) {
				if blockErr == nil {
					blockErr = ErrConflict
				}
			} else {
				refs = append(refs, SinkRef{Sink: "r2_stream", Ref: streamKey, At: now()})
			}
		}
	}

	if f.KVIndex != nil {
		kvKey := fmt.Sprintf("audit:immutable:%s", p.EntryHash)
		kvVal := map[string]interface{}{
			"ts":               p.Ts,
			"eventId":          p.EventID,
			"prev_hash":        p.PrevHash,
			"stream_prev_hash": p.StreamPrevHash,
			"payload_hash":     payloadHash,
		}
		kvBytes, _ := canonical.MarshalCanonical(kvVal)
		if err := f.KVIndex.Put(ctx, kvKey, kvBytes); err != nil {
			warnings = append(warnings, fmt.Sprintf("kv index write: %v", err))
		}
	}

	acceptedIngest := false
	if f.Ingest != nil {
		ref, err := f.Ingest.Post(ctx, payloadHash, p.EntryHash, payloadBytes)
		if err != nil {
			if blockErr == nil {
				blockErr = fmt.Errorf("http ingest: %w", err)
			}
		} else {
			refs = append(refs, SinkRef{Sink: "immutable_ingest", Ref: ref, At: now()})
			acceptedIngest = true
		}
	}

	if f.Relay != nil {
		if err := f.Relay.Publish(ctx, []byte(p.EventID), payloadBytes); err != nil {
			log.Printf("relay publish failed for entry %s: %v", p.EntryHash, err)
		}
	}

	if blockErr == nil && !acceptedR2 && !acceptedIngest {
		blockErr = ErrNoSinkAccepted
	}

	receipt := &ImmutableReceipt{
		Mode:        p.Mode.String(),
		PayloadHash: payloadHash,
		Sinks:       refs,
		Warnings:    warnings,
	}

	if blockErr != nil {
		if p.Mode == ModeRequired {
			return nil, blockErr
		}
		receipt.Warnings = append(receipt.Warnings, blockErr.Error())
	}

	return receipt, nil
}

func sanitizeTs(ts string) string {
	r := strings.NewReplacer(":", "-", ".", "_")
	return r.Replace(ts)
}
