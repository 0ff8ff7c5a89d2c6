package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL bounds how long a dedup key suppresses repeats.
const DefaultDedupTTL = 10 * time.Minute

// Deduplicator claims dedup keys. Claim reports false when the key was already claimed.
type Deduplicator interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// RedisDeduplicator claims keys with SET NX under the dispatch:dedup: prefix.
type RedisDeduplicator struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDeduplicator(client redis.UniversalClient, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}

	return &RedisDeduplicator{client: client, ttl: ttl}
}

func dedupRedisKey(key string) string {
	return "dispatch:dedup:" + key
}

func (d *RedisDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupRedisKey(key), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim dedup key %s: %w", key, err)
	}

	return ok, nil
}

func (d *RedisDeduplicator) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, dedupRedisKey(key)).Err()
}
