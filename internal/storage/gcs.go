package storage

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const publicBaseURL = "https://storage.googleapis.com"

// GCSStore writes objects to a single Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore builds a client from a service account key file, or from
// application default credentials when credentialsFile is empty.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	// Cancelling the writer's context discards the object instead of
	// finalizing a truncated one.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(wctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=0"

	if err := writeObject(w, cancel, r); err != nil {
		return "", fmt.Errorf("storage: write gs://%s/%s: %w", s.bucket, key, err)
	}
	return PublicURL(s.bucket, key), nil
}

// writeObject copies r into w and commits it with Close. A failed copy
// cancels the upload before closing.
func writeObject(w io.WriteCloser, cancel context.CancelFunc, r io.Reader) error {
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *GCSStore) Close() error { return s.client.Close() }

// PublicURL is the browser-facing URL of an object.
func PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", publicBaseURL, bucket, key)
}
