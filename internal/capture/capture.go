// Package capture validates captured media, dispatches it to the extraction
// flows, stores webcam photos, and serves the HTTP API and web UI.
package capture

import (
	"errors"
	"time"
)

// ErrCaptureNotFound is returned when a stored capture or its file is missing
var ErrCaptureNotFound = errors.New("capture not found")

// Capture is the index record of a stored webcam photo. The blob itself is
// owned by the object store.
type Capture struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	URL         string    `json:"url"`
	Backend     string    `json:"backend"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Preview is what the UI shows after a photo upload: the stored URL, or the
// local data URI when the upload failed.
type Preview struct {
	PreviewURL  string `json:"previewUrl"`
	IsStoredURL bool   `json:"isStoredUrl"`
	CaptureID   string `json:"captureId,omitempty"`
	Error       string `json:"error,omitempty"`
}
