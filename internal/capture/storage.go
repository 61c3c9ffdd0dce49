package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalFilesPath is where the server exposes files kept by LocalStorage
const LocalFilesPath = "/api/captures/files/"

// Storage defines the interface for blob storage of captured photos
type Storage interface {
	// Save stores a file and returns the URL it can be downloaded from
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)

	// Get retrieves a file by name
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes a file
	Delete(ctx context.Context, name string) error

	// Backend names the storage implementation
	Backend() string
}

// validateName rejects names that would escape the storage root
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save saves a file to local storage
func (l *LocalStorage) Save(_ context.Context, name string, data []byte, _ string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(l.basePath, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return LocalFilesPath + name, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(_ context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.basePath, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.basePath, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrCaptureNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Backend names the storage implementation
func (l *LocalStorage) Backend() string {
	return "local"
}
