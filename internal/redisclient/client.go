package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and verifies connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyLockKey(key string) string {
	return fmt.Sprintf("lock:idempotency:%s", key)
}

func trackingKey(orderNumber string) string {
	return fmt.Sprintf("tracking:%s", orderNumber)
}

// AcquireIdempotencyLock marks a checkout with the given key as in flight.
// It returns the holder token and false if another request already holds the lock.
func (c *Client) AcquireIdempotencyLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, idempotencyLockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock failed: %w", err)
	}
	return token, ok, nil
}

// ReleaseIdempotencyLock releases the lock if token still owns it
func (c *Client) ReleaseIdempotencyLock(ctx context.Context, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idempotencyLockKey(key)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// GetTrackedOrder returns the cached tracking payload, if any
func (c *Client) GetTrackedOrder(ctx context.Context, orderNumber string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, trackingKey(orderNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetTrackedOrder caches a tracking payload
func (c *Client) SetTrackedOrder(ctx context.Context, orderNumber string, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, trackingKey(orderNumber), data, ttl).Err()
}

// InvalidateTrackedOrder drops a cached tracking payload
func (c *Client) InvalidateTrackedOrder(ctx context.Context, orderNumber string) error {
	return c.rdb.Del(ctx, trackingKey(orderNumber)).Err()
}
