package sinks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKVIndex is a best-effort KVIndex binding: a failed write never blocks
// the audit append, it only surfaces as a warning on the receipt.
type RedisKVIndex struct {
	client *redis.Client
}

// NewRedisKVIndex connects to addr (host:port) using default DB 0.
func NewRedisKVIndex(addr string) *RedisKVIndex {
	return &RedisKVIndex{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Put writes value under key with no expiry; the index mirrors the audit
// log's own retention, it doesn't invent its own.
func (r *RedisKVIndex) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
