package models

import "time"

// MediaEntry is a download record in the media store catalog
type MediaEntry struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	MimeType    string    `json:"mime_type"`
	Pending     bool      `json:"pending"`
	DataPath    string    `json:"data_path"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// SavedFile describes a file persisted through the download channel
type SavedFile struct {
	Location string    `json:"location"`
	FileName string    `json:"file_name"`
	Backend  string    `json:"backend"`
	Size     int64     `json:"size"`
	SavedAt  time.Time `json:"saved_at"`
}

// MediaEntryResponse is the public view of a published media entry
type MediaEntryResponse struct {
	URI         string    `json:"uri"`
	DisplayName string    `json:"display_name"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	PublishedAt time.Time `json:"published_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
