package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"fieldsync/internal/fieldsync"
)

// MemoryVault is an in-memory implementation of the RemoteStorage interface.
// It stores all objects in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name         string
	objects      map[string][]byte // key -> content
	contentTypes map[string]string // key -> content type
	mu           sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:         name,
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// Upload stores the object and returns a memory:// URL for it.
func (m *MemoryVault) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data
	m.contentTypes[key] = contentType
	return m.URL(key), nil
}

// URL returns the URL an object under key is reachable at.
func (m *MemoryVault) URL(key string) string {
	return fmt.Sprintf("memory://%s/%s", m.name, key)
}

// Object returns a copy of the object stored under key.
func (m *MemoryVault) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// ContentType returns the content type an object was uploaded with.
func (m *MemoryVault) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contentTypes[key]
}

// Keys returns the stored object keys in sorted order.
func (m *MemoryVault) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.objects))
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemoryVault implements fieldsync.RemoteStorage interface
var _ fieldsync.RemoteStorage = (*MemoryVault)(nil)
