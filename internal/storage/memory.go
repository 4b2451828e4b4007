package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// MemoryStore keeps objects in memory. Used in tests and local runs.
type MemoryStore struct {
	bucket string

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	// failures maps a key substring to the error uploads matching it return.
	failures map[string]error
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:   bucket,
		objects:  map[string][]byte{},
		types:    map[string]string{},
		failures: map[string]error{},
	}
}

var ErrInjected = errors.New("storage: injected failure")

// FailOn makes uploads whose key contains substr fail.
func (s *MemoryStore) FailOn(substr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[substr] = ErrInjected
}

func (s *MemoryStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	for substr, err := range s.failures {
		if strings.Contains(key, substr) {
			s.mu.Unlock()
			return "", err
		}
	}
	s.mu.Unlock()

	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	s.types[key] = contentType
	return PublicURL(s.bucket, key), nil
}

// Object returns the stored bytes and content type for key.
func (s *MemoryStore) Object(key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, s.types[key], ok
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
