package testutil

import (
	"context"
	"io"
	"sync"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// FlakyStorage wraps a RemoteStorage and fails uploads chosen by a rule.
// Every attempted key is recorded. Safe for concurrent use.
type FlakyStorage struct {
	inner fieldsync.RemoteStorage

	mu       sync.Mutex
	rule     func(key string) error
	attempts []string
}

var _ fieldsync.RemoteStorage = (*FlakyStorage)(nil)

// NewFlakyStorage wraps inner. Uploads pass through until FailWhen is called.
func NewFlakyStorage(inner fieldsync.RemoteStorage) *FlakyStorage {
	return &FlakyStorage{inner: inner}
}

// FailWhen makes every upload for which rule returns an error fail with it.
func (f *FlakyStorage) FailWhen(rule func(key string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rule = rule
}

// Heal lets every upload through again.
func (f *FlakyStorage) Heal() {
	f.FailWhen(nil)
}

// Attempts returns the keys of every upload attempted so far.
func (f *FlakyStorage) Attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.attempts))
	copy(out, f.attempts)
	return out
}

func (f *FlakyStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, key)
	rule := f.rule
	f.mu.Unlock()

	if rule != nil {
		if err := rule(key); err != nil {
			return "", err
		}
	}
	return f.inner.Upload(ctx, key, r, size, contentType)
}

func (f *FlakyStorage) ValidateSetup(ctx context.Context) error {
	return f.inner.ValidateSetup(ctx)
}
