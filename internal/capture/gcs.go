package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage keeps captures in a Google Cloud Storage bucket, which is also
// where Firebase Storage keeps its objects.
type GCSStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStorage creates a client for the bucket. Objects are written under
// prefix, e.g. "captured_images/".
func NewGCSStorage(ctx context.Context, bucket string, prefix string, opts ...option.ClientOption) (*GCSStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: bucket,
		prefix: normalizePrefix(prefix),
	}, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (g *GCSStorage) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.prefix + name)
}

// publicURL is the download URL of an object in a publicly readable bucket
func publicURL(bucket, prefix, name string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + (&url.URL{Path: prefix + name}).EscapedPath()
}

// Save uploads a file in a single request
func (g *GCSStorage) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	w := g.object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}

	return publicURL(g.bucket, g.prefix, name), nil
}

// Get downloads a file
func (g *GCSStorage) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	r, err := g.object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}
	return data, nil
}

// Delete removes a file
func (g *GCSStorage) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	err := g.object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrCaptureNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// Backend names the storage implementation
func (g *GCSStorage) Backend() string {
	return "gcs"
}

// Close releases the client
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
