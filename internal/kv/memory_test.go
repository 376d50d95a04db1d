package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_GetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PutThenGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Put(ctx, "event:1", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := s.Get(ctx, "event:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "hello" {
		t.Fatalf("expected hello, got %q", v)
	}
}

func TestMemoryStore_PutIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ok, err := s.PutIfAbsent(ctx, "k", []byte("a"))
	if err != nil || !ok {
		t.Fatalf("expected first write to succeed: ok=%v err=%v", ok, err)
	}
	ok, err = s.PutIfAbsent(ctx, "k", []byte("b"))
	if err != nil || ok {
		t.Fatalf("expected second write to be rejected: ok=%v err=%v", ok, err)
	}
	v, _ := s.Get(ctx, "k")
	if string(v) != "a" {
		t.Fatalf("expected original value preserved, got %q", v)
	}
}

func TestMemoryStore_ScanPrefixSortedAndLimited(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Put(ctx, "event:b", []byte("1"))
	_ = s.Put(ctx, "event:a", []byte("1"))
	_ = s.Put(ctx, "event:c", []byte("1"))
	_ = s.Put(ctx, "claim:a", []byte("1"))

	keys, err := s.Scan(ctx, "event:", 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 3 || keys[0] != "event:a" || keys[1] != "event:b" || keys[2] != "event:c" {
		t.Fatalf("expected sorted event: keys, got %v", keys)
	}

	limited, err := s.Scan(ctx, "event:", 2)
	if err != nil {
		t.Fatalf("scan limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit applied, got %v", limited)
	}
}

func TestMemoryStore_DeleteMissingIsNotError(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("expected no error deleting a missing key: %v", err)
	}
}
