package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dedup:msg:"

// RedisStore is the multi-process deduplicator. SET NX with expiry gives one
// atomic check-and-mark across all webhook handler processes.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed deduplicator with the given TTL window.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Seen implements Deduplicator.
func (s *RedisStore) Seen(ctx context.Context, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}

	inserted, err := s.client.SetNX(ctx, redisKeyPrefix+providerMessageID, 1, s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !inserted, nil
}

// NewFromURL builds the appropriate deduplicator: redis-backed when a redis
// URL is configured, in-memory otherwise.
func NewFromURL(redisURL string, ttl time.Duration) (Deduplicator, error) {
	if redisURL == "" {
		return NewMemoryStore(ttl), nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return NewRedisStore(redis.NewClient(opt), ttl), nil
}
