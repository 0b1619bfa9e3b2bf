package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const objectTimeout = 2 * time.Minute

// GCSStorageService is the ObjectStorage backed by Google Cloud Storage.
// It uses Application Default Credentials.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService opens a Cloud Storage client. Close releases it.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Upload writes data to bucket/object. The object only becomes visible once
// the writer closes cleanly.
func (s *GCSStorageService) Upload(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, objectTimeout)
	defer cancel()

	w := s.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", bucketName, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", bucketName, objectName, err)
	}
	return nil
}

// Download reads a whole object into memory.
func (s *GCSStorageService) Download(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, objectTimeout)
	defer cancel()

	r, err := s.client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucketName, objectName, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucketName, objectName, err)
	}
	return data, nil
}

// Close releases the client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(gcsURI, "gs://")
	if !ok {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return bucket, object, nil
}

// GCSURI formats a bucket and object path as a gs:// URI.
func GCSURI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ExtractFilenameFromGCSURI returns the last path element of a gs:// URI,
// e.g. "gs://bucket/vouchers/s1/p1/a.jpg" gives "a.jpg".
func ExtractFilenameFromGCSURI(uri string) string {
	_, object, found := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
	if !found {
		return strings.TrimPrefix(uri, "gs://")
	}
	return path.Base(object)
}
