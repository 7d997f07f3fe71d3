package testutil

import (
	"fieldsync/internal/content"
	"fieldsync/internal/fieldsync"
)

// DefaultContentMaxSize is the default cap for test content stores (10MB).
const DefaultContentMaxSize = 10 * 1024 * 1024

// NewTestContentStore creates an in-memory content store.
func NewTestContentStore() fieldsync.ContentStore {
	return content.NewMemoryContentStore(DefaultContentMaxSize)
}

// NewTestContentStoreWithSize creates an in-memory content store with a custom cap.
func NewTestContentStoreWithSize(maxSize int64) fieldsync.ContentStore {
	return content.NewMemoryContentStore(maxSize)
}
