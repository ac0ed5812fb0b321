package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Querier is implemented by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Client wraps a pgx pool with the media catalog schema
type Client struct {
	pool *pgxpool.Pool
}

// NewClient connects to connString, checks the connection and creates the
// catalog tables if they are missing.
func NewClient(ctx context.Context, connString string, poolSize int) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse connection string")
	}
	if poolSize > 0 {
		poolCfg.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to connect to Postgres")
	}

	c := &Client{pool: pool}
	if err := c.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the pool
func (c *Client) Close() {
	c.pool.Close()
}

// Ping checks if Postgres is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to create catalog schema")
		}
	}
	return nil
}

// AcquireLock takes key until ttl elapses. An expired lock can be taken over.
func (c *Client) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := c.pool.Exec(ctx, `
		INSERT INTO media_locks (key, token, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
		WHERE media_locks.expires_at < $4`,
		key, token, now.Add(ttl), now)
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire lock")
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseLock releases key if token still holds it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM media_locks WHERE key = $1 AND token = $2`, key, token); err != nil {
		return errors.Wrap(err, "failed to release lock")
	}
	return nil
}
