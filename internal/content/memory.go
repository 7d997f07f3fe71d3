package content

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"

	"fieldsync/internal/fieldsync"
)

// memoryStore keeps content in a map. Useful for tests.
type memoryStore struct {
	blobs map[string][]byte
	size  int64
}

// NewMemoryContentStore creates a new in-memory content store.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryContentStore(maxSize int64) fieldsync.ContentStore {
	return &contentStore{
		store:   &memoryStore{blobs: make(map[string][]byte)},
		maxSize: maxSize,
	}
}

func (m *memoryStore) write(key string, data []byte) error {
	m.size -= int64(len(m.blobs[key]))
	m.blobs[key] = bytes.Clone(data)
	m.size += int64(len(data))
	return nil
}

func (m *memoryStore) open(key string) (io.ReadCloser, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) remove(key string) error {
	m.size -= int64(len(m.blobs[key]))
	delete(m.blobs, key)
	return nil
}

func (m *memoryStore) sizeOf(key string) (int64, error) {
	return int64(len(m.blobs[key])), nil
}

func (m *memoryStore) total() (int64, error) {
	return m.size, nil
}
