// Package saver persists caller supplied bytes into the downloads area.
//
// Every failure below the Save boundary, including panics, is reported as
// ErrSaveFailed. The underlying cause is logged and kept on the returned
// error for errors.Cause, but callers are expected to branch only on
// ErrSaveFailed.
package saver

import (
	"context"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"downloads-bridge/internal/storage"
)

var ErrSaveFailed = errors.New("failed to save file")

// SaveError carries the collapsed cause of a failed save
type SaveError struct {
	Backend string
	cause   error
}

func (e *SaveError) Error() string {
	return ErrSaveFailed.Error()
}

func (e *SaveError) Is(target error) bool {
	return target == ErrSaveFailed
}

// Cause returns the underlying failure, for logging only
func (e *SaveError) Cause() error {
	return e.cause
}

// Unwrap exposes the cause to errors.Is/As
func (e *SaveError) Unwrap() error {
	return e.cause
}

// FileSaver writes files through the backend the platform supports
type FileSaver struct {
	modern     storage.Backend
	legacy     storage.Backend
	capability storage.Capability
	logger     hclog.Logger
}

// New creates a FileSaver. modern may be nil when the platform never
// exposes the media store; a save routed to it then fails.
func New(capability storage.Capability, modern, legacy storage.Backend, logger hclog.Logger) *FileSaver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FileSaver{
		modern:     modern,
		legacy:     legacy,
		capability: capability,
		logger:     logger.Named("saver"),
	}
}

// Backend returns the backend a save issued now would use
func (s *FileSaver) Backend() storage.Backend {
	return storage.Select(s.capability, s.modern, s.legacy)
}

// BackendName names the backend a save issued now would use
func (s *FileSaver) BackendName() string {
	return backendName(s.Backend())
}

func backendName(backend storage.Backend) string {
	if backend == nil {
		return "none"
	}
	return backend.Name()
}

// Save writes data under fileName and returns its location identifier
func (s *FileSaver) Save(ctx context.Context, data []byte, fileName string) (location string, err error) {
	backend := s.Backend()
	name := backendName(backend)
	logger := s.logger.With("backend", name, "file_name", fileName)

	defer func() {
		if r := recover(); r != nil {
			location = ""
			err = s.fail(logger, name, errors.Errorf("panic: %v", r))
		}
	}()

	if backend == nil {
		return "", s.fail(logger, name, errors.New("no storage backend configured"))
	}

	location, err = backend.Write(hclog.WithContext(ctx, logger), fileName, data)
	if err != nil {
		return "", s.fail(logger, name, err)
	}
	if location == "" {
		return "", s.fail(logger, name, errors.New("backend returned no location"))
	}

	logger.Info("saved file", "location", location, "size", len(data))
	return location, nil
}

// Open reads back a location returned by Save
func (s *FileSaver) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	backend := s.legacy
	if strings.HasPrefix(location, storage.ContentScheme) {
		backend = s.modern
	}
	if backend == nil {
		return nil, errors.Wrapf(storage.ErrOutsideDownloads, "%q", location)
	}
	return backend.Open(ctx, location)
}

func (s *FileSaver) fail(logger hclog.Logger, backend string, cause error) error {
	logger.Error("save failed", "error", cause)
	return &SaveError{Backend: backend, cause: cause}
}
