package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"fieldsync/internal/fieldsync"
)

// contentStore implements fieldsync.ContentStore using a pluggable blobStore
// for the storage mechanics. The size cap and checksumming live here.
type contentStore struct {
	store   blobStore
	maxSize int64
	mu      sync.Mutex
}

var _ fieldsync.ContentStore = (*contentStore)(nil)

// Put reads r fully and stores it under key.
func (s *contentStore) Put(key string, r io.Reader) (int64, string, error) {
	if err := validateKey(key); err != nil {
		return 0, "", err
	}

	h := sha256.New()
	var buf bytes.Buffer
	size, err := io.Copy(&buf, io.TeeReader(r, h))
	if err != nil {
		return 0, "", fmt.Errorf("reading content: %w", err)
	}
	checksum := hex.EncodeToString(h.Sum(nil))

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.total()
	if err != nil {
		return 0, "", fmt.Errorf("getting current size: %w", err)
	}
	previous, err := s.store.sizeOf(key)
	if err != nil {
		return 0, "", fmt.Errorf("getting size of %s: %w", key, err)
	}
	if current-previous+size > s.maxSize {
		return 0, "", fmt.Errorf("storing %s (%d bytes, max %d): %w", key, size, s.maxSize, fieldsync.ErrStorageFull)
	}

	if err := s.store.write(key, buf.Bytes()); err != nil {
		return 0, "", fmt.Errorf("writing content: %w", err)
	}
	return size, checksum, nil
}

// Open returns a reader for the content stored under key.
func (s *contentStore) Open(key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.open(key)
}

// Remove deletes the content under key.
func (s *contentStore) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.remove(key)
}

// Size returns the total size of stored content in bytes.
func (s *contentStore) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.total()
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".tmp-") {
		return fmt.Errorf("invalid content key %q", key)
	}
	return nil
}
