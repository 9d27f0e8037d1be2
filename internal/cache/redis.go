package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store, backed by a shared Redis instance.
// TTL enforcement is delegated to Redis key expiry, which gives the same
// observable behavior as lazy eviction: an expired key is simply a miss.
type RedisStore struct {
	rdb      *redis.Client
	prefix   string
	ttl      time.Duration
	maxBytes int
}

// NewRedisStore creates a RedisStore. All keys are namespaced under prefix so
// Clear cannot touch unrelated keys on a shared instance.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration, maxBytes int) *RedisStore {
	return &RedisStore{
		rdb:      rdb,
		prefix:   prefix,
		ttl:      ttl,
		maxBytes: maxBytes,
	}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return ErrValueTooLarge
	}
	if err := s.rdb.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear deletes every key in this store's namespace, batching deletes as the
// scan progresses.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", 100).Iterator()

	pipe := s.rdb.Pipeline()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}
