package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"downloads-bridge/internal/mediastore"
	"downloads-bridge/internal/models"
)

// Key patterns:
//   - media:downloads:seq - id sequence
//   - media:downloads:entry:{id} - Hash with entry fields
//   - media:downloads:pending - Sorted Set of pending ids by creation time
//   - media:downloads:visible - Sorted Set of published ids by publish time
const (
	seqKey     = "media:downloads:seq"
	pendingKey = "media:downloads:pending"
	visibleKey = "media:downloads:visible"
)

var _ mediastore.Catalog = (*Client)(nil)

func entryKey(id int64) string {
	return fmt.Sprintf("media:downloads:entry:%d", id)
}

// NextID allocates the next entry id
func (c *Client) NextID(ctx context.Context) (int64, error) {
	id, err := c.rdb.Incr(ctx, seqKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate id")
	}
	return id, nil
}

// Put stores an entry and moves it into the pending or visible index
func (c *Client) Put(ctx context.Context, entry *models.MediaEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal entry")
	}

	member := strconv.FormatInt(entry.ID, 10)

	// Use transaction for atomicity
	pipe := c.rdb.TxPipeline()

	pipe.HSet(ctx, entryKey(entry.ID), map[string]interface{}{
		"display_name": entry.DisplayName,
		"mime_type":    entry.MimeType,
		"pending":      entry.Pending,
		"data_path":    entry.DataPath,
		"size":         entry.Size,
		"created_at":   entry.CreatedAt.Format(time.RFC3339Nano),
		"entry":        string(entryJSON),
	})

	if entry.Pending {
		pipe.ZAdd(ctx, pendingKey, redis.Z{
			Score:  float64(entry.CreatedAt.UnixNano()),
			Member: member,
		})
		pipe.ZRem(ctx, visibleKey, member)
	} else {
		pipe.ZAdd(ctx, visibleKey, redis.Z{
			Score:  float64(entry.PublishedAt.UnixNano()),
			Member: member,
		})
		pipe.ZRem(ctx, pendingKey, member)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store entry")
	}
	return nil
}

// Get retrieves an entry by id
func (c *Client) Get(ctx context.Context, id int64) (*models.MediaEntry, error) {
	raw, err := c.rdb.HGet(ctx, entryKey(id), "entry").Result()
	if err == redis.Nil {
		return nil, errors.Wrapf(mediastore.ErrEntryNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get entry")
	}

	var entry models.MediaEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal entry")
	}
	return &entry, nil
}

// Remove deletes an entry and its index membership
func (c *Client) Remove(ctx context.Context, id int64) error {
	member := strconv.FormatInt(id, 10)

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, entryKey(id))
	pipe.ZRem(ctx, pendingKey, member)
	pipe.ZRem(ctx, visibleKey, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to remove entry")
	}
	return nil
}

// Visible returns published entries, newest first
func (c *Client) Visible(ctx context.Context) ([]*models.MediaEntry, error) {
	ids, err := c.rdb.ZRevRange(ctx, visibleKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list visible entries")
	}
	return c.load(ctx, ids)
}

// PendingBefore returns pending entries created before cutoff, oldest first
func (c *Client) PendingBefore(ctx context.Context, cutoff time.Time) ([]*models.MediaEntry, error) {
	ids, err := c.rdb.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending entries")
	}
	return c.load(ctx, ids)
}

// load fetches entries for index members, skipping ids removed concurrently
func (c *Client) load(ctx context.Context, ids []string) ([]*models.MediaEntry, error) {
	entries := make([]*models.MediaEntry, 0, len(ids))
	for _, member := range ids {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		entry, err := c.Get(ctx, id)
		if errors.Is(err, mediastore.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
