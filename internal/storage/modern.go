package storage

import (
	"context"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// ContentScheme prefixes every location handed out by the media store
const ContentScheme = "content://"

// ModernBackend writes downloads through the media store: insert a pending
// entry, stream the bytes into it, then publish it.
type ModernBackend struct {
	resolver        Resolver
	mimeType        string
	rollbackPending bool
}

// ModernOption configures a ModernBackend
type ModernOption func(*ModernBackend)

// WithRollbackPending deletes the pending entry when the write fails.
// Without it the entry is left for the media store's own expiry.
func WithRollbackPending(enabled bool) ModernOption {
	return func(mb *ModernBackend) {
		mb.rollbackPending = enabled
	}
}

// NewModernBackend creates a ModernBackend declaring every entry as mimeType
func NewModernBackend(resolver Resolver, mimeType string, opts ...ModernOption) *ModernBackend {
	mb := &ModernBackend{
		resolver: resolver,
		mimeType: mimeType,
	}
	for _, opt := range opts {
		opt(mb)
	}
	return mb
}

// Name returns "modern"
func (mb *ModernBackend) Name() string {
	return "modern"
}

// Write inserts a pending entry named name, fills it with data and publishes it.
// It returns the entry URI.
func (mb *ModernBackend) Write(ctx context.Context, name string, data []byte) (string, error) {
	logger := hclog.FromContext(ctx)

	uri, err := mb.resolver.Insert(ctx, Values{DisplayName: name, MimeType: mb.mimeType})
	if err != nil {
		return "", errors.Wrap(err, "failed to insert entry")
	}
	if uri == "" {
		return "", errors.Wrap(ErrNoHandle, "media store returned no entry")
	}

	if err := mb.writeEntry(ctx, uri, data); err != nil {
		if mb.rollbackPending {
			if derr := mb.resolver.Delete(ctx, uri); derr != nil {
				logger.Warn("failed to roll back pending entry", "uri", uri, "error", derr)
			}
		} else {
			logger.Warn("leaving pending entry after failed write", "uri", uri)
		}
		return "", err
	}

	if err := mb.resolver.Publish(ctx, uri); err != nil {
		return "", errors.Wrap(err, "failed to publish entry")
	}

	logger.Debug("published download", "uri", uri, "size", len(data))
	return uri, nil
}

// writeEntry copies data into the entry, closing the handle on every path
func (mb *ModernBackend) writeEntry(ctx context.Context, uri string, data []byte) (err error) {
	w, err := mb.resolver.OpenOutput(ctx, uri)
	if err != nil {
		return errors.Wrap(err, "failed to open entry")
	}
	if w == nil {
		return errors.Wrapf(ErrNoHandle, "%s", uri)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close entry")
		}
	}()

	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write entry")
	}
	return nil
}

// Open reads back a published entry
func (mb *ModernBackend) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, ContentScheme) {
		return nil, errors.Wrapf(ErrOutsideDownloads, "%q", location)
	}
	return mb.resolver.OpenInput(ctx, location)
}
