package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"vcgate/internal/platform/redis"
	"vcgate/pkg/platform/sentinel"
)

const keyPrefix = "vcgate:result:"

// RedisStore backs the result cache with Redis. TTL enforcement is native:
// SET with expiry means expired entries simply stop existing, so reads never
// need an eviction pass. Shared across instances, which also makes the cache
// survive restarts.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// payload is the stored JSON envelope. StoredAt travels with the value so a
// Get can reconstruct a faithful Entry even though Redis owns expiry.
type payload struct {
	Result   json.RawMessage `json:"result"`
	StoredAt time.Time       `json:"stored_at"`
	TTLMs    int64           `json:"ttl_ms"`
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) (Entry, error) {
	raw, err := s.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Entry{}, sentinel.ErrNotFound
		}
		return Entry{}, fmt.Errorf("redis get: %w", err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Entry{}, fmt.Errorf("decode cache payload: %w", err)
	}
	return Entry{
		Fingerprint: fingerprint,
		Result:      p.Result,
		StoredAt:    p.StoredAt,
		TTL:         time.Duration(p.TTLMs) * time.Millisecond,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, fingerprint string, result json.RawMessage, ttl time.Duration) error {
	raw, err := json.Marshal(payload{
		Result:   result,
		StoredAt: time.Now(),
		TTLMs:    ttl.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+fingerprint, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
