// Package platform decides which storage mechanism the running platform
// exposes. Platforms at or above the media store version get the catalog
// backed path, older ones write straight to the downloads directory.
package platform

import (
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// Storage modes accepted by New.
const (
	ModeAuto   = "auto"
	ModeModern = "modern"
	ModeLegacy = "legacy"
)

var ErrUnknownMode = errors.New("unknown storage mode")

// Info describes the platform the bridge is serving.
type Info struct {
	version    *version.Version
	mediaStore *version.Version
	mode       string
}

// New parses the platform release and the first release that ships the
// media store. mode forces one mechanism regardless of version.
func New(release, mediaStoreMin, mode string) (*Info, error) {
	v, err := version.NewVersion(strings.TrimSpace(release))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid platform version %q", release)
	}
	minimum, err := version.NewVersion(strings.TrimSpace(mediaStoreMin))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid media store version %q", mediaStoreMin)
	}

	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeAuto
	}
	switch mode {
	case ModeAuto, ModeModern, ModeLegacy:
	default:
		return nil, errors.Wrapf(ErrUnknownMode, "%q", mode)
	}

	return &Info{version: v, mediaStore: minimum, mode: mode}, nil
}

// ModernStorageAvailable reports whether saves should go through the media store.
func (i *Info) ModernStorageAvailable() bool {
	switch i.mode {
	case ModeModern:
		return true
	case ModeLegacy:
		return false
	}
	return i.version.GreaterThanOrEqual(i.mediaStore)
}

// Version returns the platform release as given.
func (i *Info) Version() string {
	return i.version.Original()
}

// Mode returns the configured storage mode.
func (i *Info) Mode() string {
	return i.mode
}
