package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSArchive uploads snapshots to a Google Cloud Storage bucket.
type GCSArchive struct {
	client *storage.Client
	bucket string
}

// NewGCS wraps an existing storage client.
func NewGCS(client *storage.Client, bucket string) (*GCSArchive, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSArchive{client: client, bucket: bucket}, nil
}

// Save uploads one snapshot and returns its gs:// URI.
func (a *GCSArchive) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("snapshot name is required")
	}
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("upload snapshot: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close snapshot writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, name), nil
}
