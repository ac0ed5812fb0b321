// Package cleanup reclaims media store entries abandoned while pending.
//
// A save that fails between insert and publish can leave a pending entry and
// its data file under the volume's .pending directory. RunPeriodic deletes
// pending entries older than the configured TTL.
package cleanup

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"downloads-bridge/internal/mediastore"
	"downloads-bridge/internal/models"
)

// Store is the part of the media store the reaper needs
type Store interface {
	StalePending(ctx context.Context, cutoff time.Time) ([]*models.MediaEntry, error)
	Delete(ctx context.Context, uri string) error
}

// PendingEntries deletes pending entries created more than ttl ago and
// returns how many were removed. Published entries are never touched.
func PendingEntries(ctx context.Context, store Store, ttl time.Duration, logger hclog.Logger) int {
	cutoff := time.Now().Add(-ttl)
	entries, err := store.StalePending(ctx, cutoff)
	if err != nil {
		logger.Warn("cleanup: listing pending entries failed", "error", err)
		return 0
	}

	var removed int
	for _, entry := range entries {
		uri := mediastore.URI(entry.ID)
		age := time.Since(entry.CreatedAt).Round(time.Minute)
		if err := store.Delete(ctx, uri); err != nil {
			logger.Warn("cleanup: delete failed", "uri", uri, "error", err)
			continue
		}
		removed++
		logger.Info("cleanup: removed stale pending entry", "uri", uri, "display_name", entry.DisplayName, "age", age)
	}
	if removed > 0 {
		logger.Info("cleanup: cycle complete", "removed", removed)
	}
	return removed
}

// RunPeriodic starts a background goroutine that calls PendingEntries on every
// interval until ctx is cancelled. The first pass runs immediately.
func RunPeriodic(ctx context.Context, store Store, ttl, interval time.Duration, logger hclog.Logger) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("cleanup")

	go func() {
		PendingEntries(ctx, store, ttl, logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PendingEntries(ctx, store, ttl, logger)
			case <-ctx.Done():
				return
			}
		}
	}()
}
