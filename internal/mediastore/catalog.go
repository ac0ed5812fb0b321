package mediastore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"downloads-bridge/internal/models"
	"downloads-bridge/internal/storage"
)

// DownloadsURI is the collection every download entry lives under
const DownloadsURI = storage.ContentScheme + "media/external/downloads"

var (
	ErrEntryNotFound = errors.New("media entry not found")
	ErrInvalidURI    = errors.New("invalid media uri")
)

// Catalog persists media entries and their pending/visible state
type Catalog interface {
	// NextID allocates a new entry id
	NextID(ctx context.Context) (int64, error)
	// Put creates or replaces an entry
	Put(ctx context.Context, entry *models.MediaEntry) error
	// Get returns the entry or ErrEntryNotFound
	Get(ctx context.Context, id int64) (*models.MediaEntry, error)
	// Remove deletes the entry; missing entries are not an error
	Remove(ctx context.Context, id int64) error
	// Visible lists published entries, newest first
	Visible(ctx context.Context) ([]*models.MediaEntry, error)
	// PendingBefore lists pending entries created before cutoff
	PendingBefore(ctx context.Context, cutoff time.Time) ([]*models.MediaEntry, error)
	// AcquireLock takes a named lock for token, returning false if it is held
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// ReleaseLock drops a named lock if token still holds it
	ReleaseLock(ctx context.Context, key, token string) error
}

// URI returns the locator for an entry id
func URI(id int64) string {
	return DownloadsURI + "/" + strconv.FormatInt(id, 10)
}

// ParseURI extracts the entry id from a locator
func ParseURI(uri string) (int64, error) {
	rest, ok := strings.CutPrefix(uri, DownloadsURI+"/")
	if !ok {
		return 0, errors.Wrapf(ErrInvalidURI, "%q", uri)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(ErrInvalidURI, "%q", uri)
	}
	return id, nil
}
