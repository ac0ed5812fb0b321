package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"downloads-bridge/internal/mediastore"
	"downloads-bridge/internal/models"
)

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS media_entry_seq`,
	`CREATE TABLE IF NOT EXISTS media_entries (
		id           BIGINT PRIMARY KEY,
		display_name TEXT NOT NULL,
		mime_type    TEXT NOT NULL DEFAULT '',
		pending      BOOLEAN NOT NULL,
		data_path    TEXT NOT NULL,
		size         BIGINT NOT NULL DEFAULT 0,
		checksum     TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS media_entries_pending_idx ON media_entries (created_at) WHERE pending`,
	`CREATE INDEX IF NOT EXISTS media_entries_visible_idx ON media_entries (published_at DESC) WHERE NOT pending`,
	`CREATE TABLE IF NOT EXISTS media_locks (
		key        TEXT PRIMARY KEY,
		token      TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`ALTER TABLE media_locks ADD COLUMN IF NOT EXISTS token TEXT NOT NULL DEFAULT ''`,
}

const entryColumns = `id, display_name, mime_type, pending, data_path, size, checksum, created_at, published_at`

var _ mediastore.Catalog = (*Client)(nil)

// NextID allocates the next entry id
func (c *Client) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := c.pool.QueryRow(ctx, `SELECT nextval('media_entry_seq')`).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "failed to allocate id")
	}
	return id, nil
}

// Put creates or replaces an entry
func (c *Client) Put(ctx context.Context, entry *models.MediaEntry) error {
	var publishedAt *time.Time
	if !entry.PublishedAt.IsZero() {
		publishedAt = &entry.PublishedAt
	}

	_, err := c.pool.Exec(ctx, `
		INSERT INTO media_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			mime_type    = EXCLUDED.mime_type,
			pending      = EXCLUDED.pending,
			data_path    = EXCLUDED.data_path,
			size         = EXCLUDED.size,
			checksum     = EXCLUDED.checksum,
			published_at = EXCLUDED.published_at`,
		entry.ID, entry.DisplayName, entry.MimeType, entry.Pending, entry.DataPath,
		entry.Size, entry.Checksum, entry.CreatedAt, publishedAt)
	if err != nil {
		return errors.Wrap(err, "failed to store entry")
	}
	return nil
}

// Get retrieves an entry by id
func (c *Client) Get(ctx context.Context, id int64) (*models.MediaEntry, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM media_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(mediastore.ErrEntryNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get entry")
	}
	return entry, nil
}

// Remove deletes an entry
func (c *Client) Remove(ctx context.Context, id int64) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM media_entries WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "failed to delete entry")
	}
	return nil
}

// Visible lists published entries, newest first
func (c *Client) Visible(ctx context.Context) ([]*models.MediaEntry, error) {
	return queryEntries(ctx, c.pool, `
		SELECT `+entryColumns+` FROM media_entries
		WHERE NOT pending ORDER BY published_at DESC, id DESC`)
}

// PendingBefore lists pending entries created before cutoff, oldest first
func (c *Client) PendingBefore(ctx context.Context, cutoff time.Time) ([]*models.MediaEntry, error) {
	return queryEntries(ctx, c.pool, `
		SELECT `+entryColumns+` FROM media_entries
		WHERE pending AND created_at < $1 ORDER BY created_at, id`, cutoff)
}

func queryEntries(ctx context.Context, q Querier, sql string, args ...any) ([]*models.MediaEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query entries")
	}
	defer rows.Close()

	var entries []*models.MediaEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows iteration")
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (*models.MediaEntry, error) {
	var (
		entry       models.MediaEntry
		publishedAt *time.Time
	)
	err := row.Scan(
		&entry.ID, &entry.DisplayName, &entry.MimeType, &entry.Pending, &entry.DataPath,
		&entry.Size, &entry.Checksum, &entry.CreatedAt, &publishedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if publishedAt != nil {
		entry.PublishedAt = publishedAt.UTC()
	}
	return &entry, nil
}
