// Package mediastore implements the download collection of a media store:
// entries are created pending, filled through an output handle and then
// published under a unique display name in the volume directory.
package mediastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"downloads-bridge/internal/models"
	"downloads-bridge/internal/storage"
)

const (
	pendingDir     = ".pending"
	publishLockTTL = 10 * time.Second
	lockRetryDelay = 20 * time.Millisecond
	maxNameSuffix  = 10000
)

var _ storage.Resolver = (*Store)(nil)

// Store is a media store backed by a Catalog and a volume directory
type Store struct {
	catalog Catalog
	volume  string
	logger  hclog.Logger
	now     func() time.Time
}

// NewStore creates a Store publishing into volumeDir
func NewStore(catalog Catalog, volumeDir string, logger hclog.Logger) (*Store, error) {
	volume, err := filepath.Abs(volumeDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve volume %q", volumeDir)
	}
	if err := os.MkdirAll(filepath.Join(volume, pendingDir), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create volume")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		catalog: catalog,
		volume:  volume,
		logger:  logger.Named("mediastore"),
		now:     time.Now,
	}, nil
}

// Insert registers a pending entry with an empty data file
func (s *Store) Insert(ctx context.Context, values storage.Values) (string, error) {
	id, err := s.catalog.NextID(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to allocate entry id")
	}

	entry := &models.MediaEntry{
		ID:          id,
		DisplayName: values.DisplayName,
		MimeType:    values.MimeType,
		Pending:     true,
		DataPath:    filepath.Join(s.volume, pendingDir, strconv.FormatInt(id, 10)),
		CreatedAt:   s.now().UTC(),
	}

	f, err := os.Create(entry.DataPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to create pending data file")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "failed to create pending data file")
	}

	if err := s.catalog.Put(ctx, entry); err != nil {
		_ = os.Remove(entry.DataPath)
		return "", errors.Wrap(err, "failed to record entry")
	}

	uri := URI(id)
	s.logger.Debug("inserted pending entry", "uri", uri, "display_name", entry.DisplayName)
	return uri, nil
}

// OpenOutput truncates and opens a pending entry's data file for writing
func (s *Store) OpenOutput(ctx context.Context, uri string) (io.WriteCloser, error) {
	entry, err := s.lookup(ctx, uri)
	if err != nil {
		return nil, err
	}
	if !entry.Pending {
		return nil, errors.Errorf("entry %s is already published", uri)
	}

	f, err := os.OpenFile(entry.DataPath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pending data file")
	}
	return f, nil
}

// Publish moves a pending entry into the volume under a unique name and
// makes it visible. Publishing an already visible entry is a no-op.
func (s *Store) Publish(ctx context.Context, uri string) error {
	entry, err := s.lookup(ctx, uri)
	if err != nil {
		return err
	}
	if !entry.Pending {
		return nil
	}

	lockKey := "media:downloads:" + entry.DisplayName
	token := uuid.NewString()
	if err := s.lock(ctx, lockKey, token); err != nil {
		return err
	}
	defer func() {
		if err := s.catalog.ReleaseLock(ctx, lockKey, token); err != nil {
			s.logger.Warn("failed to release publish lock", "key", lockKey, "error", err)
		}
	}()

	name, final, err := s.claimName(entry.DataPath, entry.DisplayName)
	if err != nil {
		return err
	}

	size, checksum, err := digest(final)
	if err != nil {
		_ = os.Remove(final)
		return err
	}

	pendingPath := entry.DataPath
	entry.DisplayName = name
	entry.DataPath = final
	entry.Size = size
	entry.Checksum = checksum
	entry.Pending = false
	entry.PublishedAt = s.now().UTC()

	if err := s.catalog.Put(ctx, entry); err != nil {
		// the pending file is still in place for a retry or the reaper
		_ = os.Remove(final)
		return errors.Wrap(err, "failed to record published entry")
	}
	if err := os.Remove(pendingPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove pending data file", "path", pendingPath, "error", err)
	}

	s.logger.Info("published entry", "uri", uri, "display_name", name, "size", size)
	return nil
}

// Delete removes an entry and its data file
func (s *Store) Delete(ctx context.Context, uri string) error {
	entry, err := s.lookup(ctx, uri)
	if errors.Is(err, ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := os.Remove(entry.DataPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete data file")
	}
	if err := s.catalog.Remove(ctx, entry.ID); err != nil {
		return errors.Wrap(err, "failed to delete entry")
	}
	return nil
}

// OpenInput opens a published entry for reading. Pending entries are not visible.
func (s *Store) OpenInput(ctx context.Context, uri string) (io.ReadCloser, error) {
	entry, err := s.lookup(ctx, uri)
	if err != nil {
		return nil, err
	}
	if entry.Pending {
		return nil, errors.Wrapf(ErrEntryNotFound, "%s", uri)
	}

	f, err := os.Open(entry.DataPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open entry")
	}
	return f, nil
}

// Query lists published entries, newest first
func (s *Store) Query(ctx context.Context) ([]*models.MediaEntry, error) {
	entries, err := s.catalog.Visible(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query entries")
	}
	return entries, nil
}

// StalePending lists pending entries created before cutoff
func (s *Store) StalePending(ctx context.Context, cutoff time.Time) ([]*models.MediaEntry, error) {
	entries, err := s.catalog.PendingBefore(ctx, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pending entries")
	}
	return entries, nil
}

func (s *Store) lookup(ctx context.Context, uri string) (*models.MediaEntry, error) {
	id, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	entry, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// lock spins on the catalog lock until it is acquired or ctx is done
func (s *Store) lock(ctx context.Context, key, token string) error {
	for {
		acquired, err := s.catalog.AcquireLock(ctx, key, token, publishLockTTL)
		if err != nil {
			return errors.Wrap(err, "failed to acquire publish lock")
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for publish lock")
		case <-time.After(lockRetryDelay):
		}
	}
}

// claimName hard links src into the volume under name, or "base (n).ext"
// when name is taken. The link fails on an existing target, so two
// publishers never end up sharing a file.
func (s *Store) claimName(src, name string) (string, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 0; n < maxNameSuffix; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
		}
		final := filepath.Join(s.volume, candidate)
		if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
			return "", "", errors.Wrap(err, "failed to create publish directory")
		}

		err := os.Link(src, final)
		if err == nil {
			return candidate, final, nil
		}
		if !os.IsExist(err) {
			return "", "", errors.Wrap(err, "failed to move entry into volume")
		}
	}
	return "", "", errors.Errorf("no free name for %q", name)
}

func digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", errors.Wrap(err, "failed to open published file")
	}
	defer f.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, f)
	if err != nil {
		return 0, "", errors.Wrap(err, "failed to checksum published file")
	}
	return n, hex.EncodeToString(hash.Sum(nil)), nil
}
