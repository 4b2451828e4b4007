package storage

import (
	"context"
	"errors"
	"io"
)

// ObjectStore uploads report attachments and returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

var ErrEmptyKey = errors.New("storage: empty object key")
