package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
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

// NewClient creates a new Redis client with Lua scripts loaded
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

// Ping reports whether Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock takes lock:<name> for ttl. It returns the owner token to pass
// to ReleaseLock, or ok=false when someone else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = c.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock drops the lock if token still owns it. A lock that expired and
// was taken by another owner is left alone.
func (c *Client) ReleaseLock(ctx context.Context, name, token string) (bool, error) {
	result, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(name)}, token).Result()
	if err != nil {
		return false, fmt.Errorf("release lock script failed: %w", err)
	}

	deleted, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return deleted == 1, nil
}

// RememberOrder records the order created for a user's idempotency key.
func (c *Client) RememberOrder(ctx context.Context, userID int64, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(userID, key), orderID, ttl).Err()
}

// LookupOrder returns the order recorded for a user's idempotency key.
func (c *Client) LookupOrder(ctx context.Context, userID int64, key string) (int64, bool, error) {
	return c.getInt64(ctx, idempotencyKey(userID, key))
}

// CacheSession remembers which user a bearer token resolved to.
func (c *Client) CacheSession(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, sessionKey(token), userID, ttl).Err()
}

// CachedSession returns the cached user for a bearer token.
func (c *Client) CachedSession(ctx context.Context, token string) (int64, bool, error) {
	return c.getInt64(ctx, sessionKey(token))
}

// EvictSession forgets a cached bearer token
func (c *Client) EvictSession(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, sessionKey(token)).Err()
}

func (c *Client) getInt64(ctx context.Context, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt value at %s: %w", key, err)
	}
	return n, true, nil
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

func idempotencyKey(userID int64, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", userID, key)
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}
