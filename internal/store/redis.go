// Package store provides durable dedup record storage. Two backends are
// supported: Redis (SETNX with a retention TTL) and PostgreSQL (insert
// with conflict suppression). Both make Insert an atomic check-and-set so
// overlapping invocations cannot both claim a (event, channel) pair.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quakewatch/internal/dedup"
)

// redisKeyPrefix namespaces dedup records in Redis.
const redisKeyPrefix = "alerted:"

// RedisStore is a dedup store backed by Redis. Records expire after the
// retention window; events older than the feed's lookback horizon can
// never recur, so expiry is safe.
type RedisStore struct {
	client *redis.Client
}

// ConnectRedis creates and validates a Redis connection. The client is
// shared between the dedup store and the metrics collector.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore connects to Redis and validates the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client, err := ConnectRedis(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client, for tests and shared
// connections.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(k dedup.Key) string {
	return redisKeyPrefix + k.EventID + ":" + k.Channel
}

// Lookup returns the subset of keys that already have records, in one
// MGET round trip.
func (s *RedisStore) Lookup(ctx context.Context, keys []dedup.Key) ([]dedup.Key, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = redisKey(k)
	}

	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up dedup records: %w", err)
	}

	var known []dedup.Key
	for i, v := range values {
		if v != nil {
			known = append(known, keys[i])
		}
	}
	return known, nil
}

// Insert records the key with SETNX. Returns false when the key already
// existed, which is a no-op, not an error.
func (s *RedisStore) Insert(ctx context.Context, rec dedup.Record) (bool, error) {
	inserted, err := s.client.SetNX(ctx, redisKey(rec.Key),
		rec.SentAt.Format(time.RFC3339), dedup.RetentionWindow).Result()
	if err != nil {
		return false, fmt.Errorf("failed to insert dedup record: %w", err)
	}
	return inserted, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
