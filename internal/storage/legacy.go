package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// LegacyBackend writes downloads straight into the public downloads directory
type LegacyBackend struct {
	dir string
}

// NewLegacyBackend creates a LegacyBackend rooted at the downloads directory.
// The directory is created lazily on each write.
func NewLegacyBackend(downloadsDir string) (*LegacyBackend, error) {
	dir, err := filepath.Abs(downloadsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve downloads directory %q", downloadsDir)
	}
	return &LegacyBackend{dir: dir}, nil
}

// Name returns "legacy"
func (lb *LegacyBackend) Name() string {
	return "legacy"
}

// Dir returns the resolved downloads directory
func (lb *LegacyBackend) Dir() string {
	return lb.dir
}

// GetPath returns the target path for a file name
func (lb *LegacyBackend) GetPath(name string) string {
	return filepath.Join(lb.dir, name)
}

// Write stores data as <downloads>/<name> and returns the absolute path.
// An existing file with the same name is overwritten.
func (lb *LegacyBackend) Write(ctx context.Context, name string, data []byte) (path string, err error) {
	if err := os.MkdirAll(lb.dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create downloads directory")
	}

	path = lb.GetPath(name)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open file")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			path, err = "", errors.Wrap(cerr, "failed to close file")
		}
	}()

	if _, err := f.Write(data); err != nil {
		return "", errors.Wrap(err, "failed to write file")
	}

	hclog.FromContext(ctx).Debug("wrote download", "path", path, "size", len(data))
	return path, nil
}

// Open reads a file previously written under the downloads directory
func (lb *LegacyBackend) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	path, err := filepath.Abs(location)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve location")
	}
	rel, err := filepath.Rel(lb.dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errors.Wrapf(ErrOutsideDownloads, "%q", location)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	return f, nil
}
