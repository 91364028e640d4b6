package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "walter:thread:"

// RedisClient is the subset of go-redis used by RedisStore.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisStore shares the mapping across instances. A zero TTL keeps keys
// forever, matching the in-memory store.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to url (redis://...) and verifies it with PING.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisPrefix, ttl: ttl}
}

func (r *RedisStore) GetThread(ctx context.Context, conversationID string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+conversationID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get conversation thread: %w", err)
	}
	return val, true, nil
}

func (r *RedisStore) SetThread(ctx context.Context, conversationID, threadID string) error {
	if err := r.client.Set(ctx, r.prefix+conversationID, threadID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation thread: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteThread(ctx context.Context, conversationID string) error {
	if err := r.client.Del(ctx, r.prefix+conversationID).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation thread: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
