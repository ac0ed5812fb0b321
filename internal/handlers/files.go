package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"downloads-bridge/internal/mediastore"
	"downloads-bridge/internal/models"
	"downloads-bridge/internal/storage"
)

// Opener reads back saved files by location
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Lister lists published media store entries
type Lister interface {
	Query(ctx context.Context) ([]*models.MediaEntry, error)
}

// FilesHandler serves saved downloads
type FilesHandler struct {
	opener Opener
	lister Lister
}

// NewFilesHandler creates a new files handler. lister is nil when the
// media store is not in use.
func NewFilesHandler(opener Opener, lister Lister) *FilesHandler {
	return &FilesHandler{
		opener: opener,
		lister: lister,
	}
}

// HandleList handles GET /downloads - returns published media store entries
func (h *FilesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		respondError(w, http.StatusNotFound, "Media store is not enabled", nil)
		return
	}

	entries, err := h.lister.Query(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list downloads", err)
		return
	}

	response := make([]models.MediaEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, models.MediaEntryResponse{
			URI:         mediastore.URI(entry.ID),
			DisplayName: entry.DisplayName,
			MimeType:    entry.MimeType,
			Size:        entry.Size,
			Checksum:    entry.Checksum,
			PublishedAt: entry.PublishedAt,
		})
	}

	respondJSON(w, http.StatusOK, response)
}

// HandleOpen handles GET /downloads/open?location=... - streams a saved file
func (h *FilesHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location == "" {
		respondError(w, http.StatusBadRequest, "location is required", nil)
		return
	}

	rc, err := h.opener.Open(r.Context(), location)
	if err != nil {
		if isNotFound(err) {
			respondError(w, http.StatusNotFound, "File not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to read file", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(location)}))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrOutsideDownloads) ||
		errors.Is(err, mediastore.ErrEntryNotFound) ||
		errors.Is(err, mediastore.ErrInvalidURI) ||
		errors.Is(err, os.ErrNotExist)
}
