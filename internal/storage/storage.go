package storage

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrNoHandle is returned when the media store cannot hand out a writer.
	ErrNoHandle = errors.New("no output handle for entry")
	// ErrOutsideDownloads is returned when a location does not belong to a backend.
	ErrOutsideDownloads = errors.New("location is outside the downloads area")
)

// Backend defines one way of persisting downloads
type Backend interface {
	// Name identifies the backend in logs and events
	Name() string
	// Write stores data under name and returns its location identifier
	Write(ctx context.Context, name string, data []byte) (string, error)
	// Open reads back a location previously returned by Write
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Capability reports which storage mechanism the platform exposes
type Capability interface {
	ModernStorageAvailable() bool
}

// Values describes a media store entry at insert time
type Values struct {
	DisplayName string
	MimeType    string
}

// Resolver is the media store surface the modern backend writes through.
// Entries are addressed by URI.
type Resolver interface {
	// Insert registers a pending entry and returns its URI
	Insert(ctx context.Context, values Values) (string, error)
	// OpenOutput returns a writer for a pending entry's content
	OpenOutput(ctx context.Context, uri string) (io.WriteCloser, error)
	// Publish clears the pending flag so the entry becomes visible
	Publish(ctx context.Context, uri string) error
	// Delete removes the entry and its content
	Delete(ctx context.Context, uri string) error
	// OpenInput reads a published entry
	OpenInput(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Select returns modern when the platform exposes the media store, legacy otherwise
func Select(capability Capability, modern, legacy Backend) Backend {
	if capability.ModernStorageAvailable() {
		return modern
	}
	return legacy
}
