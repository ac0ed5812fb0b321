package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client with the media catalog schema
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(host string, port string, password string) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetClient returns the underlying Redis client (for advanced operations)
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection, used by health checks
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// releaseScript deletes the lock only while it still carries the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock acquires a distributed lock using SET NX
// Returns true if lock was acquired, false if already locked
func (c *Client) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result := c.rdb.SetNX(ctx, lockKey(key), token, ttl)
	if result.Err() != nil {
		return false, errors.Wrap(result.Err(), "failed to acquire lock")
	}
	return result.Val(), nil
}

// ReleaseLock releases a distributed lock held by token. A lock that expired
// and was taken by someone else is left alone.
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		return errors.Wrap(err, "failed to release lock")
	}
	return nil
}

func lockKey(key string) string {
	return "lock:" + key
}
