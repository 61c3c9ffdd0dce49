package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/datacapture/internal/media"
)

// Messages shown with a local preview when a photo was not stored
const (
	MsgUploadFailed = "Could not store image in the cloud."
	MsgNoImageData  = "No image data provided."
)

// IDGenerator generates unique IDs for captures
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service stores webcam photos and keeps the capture index
type Service struct {
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage) *Service {
	return NewServiceWithDeps(db, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// captureFilename derives the stored name from the capture time
func captureFilename(now time.Time, contentType string) string {
	return fmt.Sprintf("photo-%d%s", now.UnixMilli(), media.Extension(contentType))
}

// UploadCapture stores a photo in a single attempt. When storing fails the
// photo comes back as a local data URI preview and the index is untouched.
func (s *Service) UploadCapture(ctx context.Context, data []byte, contentType string) Preview {
	if len(data) == 0 {
		return Preview{Error: MsgNoImageData}
	}

	contentType = media.DetectContentType("", data, contentType)
	local := media.Media{MIMEType: contentType, Data: data}.DataURI()
	now := s.timeSource.Now()
	name := captureFilename(now, contentType)

	url, err := s.storage.Save(ctx, name, data, contentType)
	if err != nil {
		slog.Error("Error uploading capture", "filename", name, "backend", s.storage.Backend(), "error", err)
		return Preview{PreviewURL: local, Error: MsgUploadFailed}
	}

	capture := &Capture{
		ID:          s.idGenerator.Generate(),
		Filename:    name,
		ContentType: contentType,
		Size:        len(data),
		URL:         url,
		Backend:     s.storage.Backend(),
		CreatedAt:   now,
	}
	if err := s.db.SaveCapture(capture); err != nil {
		slog.Error("Error saving capture", "filename", name, "error", err)
		if delErr := s.storage.Delete(ctx, name); delErr != nil {
			slog.Warn("Failed to delete file", "filename", name, "error", delErr)
		}
		return Preview{PreviewURL: local, Error: MsgUploadFailed}
	}

	slog.Info("Stored capture", "id", capture.ID, "filename", name, "size", capture.Size)
	return Preview{PreviewURL: url, IsStoredURL: true, CaptureID: capture.ID}
}

// ListCaptures returns all stored captures, newest first
func (s *Service) ListCaptures() ([]*Capture, error) {
	captures, err := s.db.ListCaptures()
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}
	return captures, nil
}

// GetCaptureFile reads a stored photo by file name
func (s *Service) GetCaptureFile(ctx context.Context, name string) ([]byte, string, error) {
	data, err := s.storage.Get(ctx, name)
	if err != nil {
		return nil, "", fmt.Errorf("getting capture file: %w", err)
	}
	return data, media.DetectContentType(name, data, ""), nil
}

// DeleteCapture removes a capture record and its file
func (s *Service) DeleteCapture(ctx context.Context, id string) error {
	capture, err := s.db.GetCapture(id)
	if err != nil {
		return fmt.Errorf("getting capture for deletion: %w", err)
	}

	if err := s.storage.Delete(ctx, capture.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", capture.Filename, "error", err)
	}

	if err := s.db.DeleteCapture(id); err != nil {
		return fmt.Errorf("deleting capture from database: %w", err)
	}
	return nil
}
