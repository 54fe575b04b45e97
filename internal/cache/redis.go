package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "order-service:idempotency:"

// KeyState is what Reserve found for an idempotency key.
type KeyState int

const (
	// KeyReserved means the caller now owns the key.
	KeyReserved KeyState = iota
	// KeyPending means another request holds the key and has not finished.
	KeyPending
	// KeyDone means a request with this key already completed.
	KeyDone
)

const (
	statePending = "pending"
	stateDone    = "done"
)

// RedisCache remembers idempotency keys for a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func idempotencyKey(key string) string {
	return keyPrefix + key
}

// Reserve claims key as pending. When the key is already taken it reports
// whether its holder is still working or has completed.
func (c *RedisCache) Reserve(ctx context.Context, key string) (KeyState, error) {
	ok, err := c.client.SetNX(ctx, idempotencyKey(key), statePending, c.ttl).Result()
	if err != nil {
		return KeyPending, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		return KeyReserved, nil
	}

	state, err := c.client.Get(ctx, idempotencyKey(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Released or expired between SETNX and GET; the caller may retry.
		return KeyPending, nil
	case err != nil:
		return KeyPending, fmt.Errorf("failed to read idempotency key: %w", err)
	case state == stateDone:
		return KeyDone, nil
	default:
		return KeyPending, nil
	}
}

// Complete marks a reserved key done for a fresh TTL.
func (c *RedisCache) Complete(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, idempotencyKey(key), stateDone, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release forgets key so the same request can be retried.
func (c *RedisCache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
