package testutil

import (
	"context"
	"sync"

	"fieldsync/internal/fieldsync"
	"fieldsync/internal/remote"
)

// NewTestRemote creates an in-memory remote database.
func NewTestRemote() *remote.MemoryDatabase {
	return remote.NewMemoryDatabase()
}

// FailingRemote wraps a RemoteDatabase and returns configured errors
// instead of calling through. Calls are counted per method.
type FailingRemote struct {
	inner fieldsync.RemoteDatabase

	mu        sync.Mutex
	insertErr error
	updateErr error
	selectErr error
	inserts   int
	updates   int
}

var _ fieldsync.RemoteDatabase = (*FailingRemote)(nil)

// NewFailingRemote wraps inner. Calls pass through until an error is set.
func NewFailingRemote(inner fieldsync.RemoteDatabase) *FailingRemote {
	return &FailingRemote{inner: inner}
}

// SetInsertError makes Insert fail with err; nil restores pass-through.
func (f *FailingRemote) SetInsertError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertErr = err
}

// SetUpdateError makes Update fail with err; nil restores pass-through.
func (f *FailingRemote) SetUpdateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

// SetSelectError makes Select fail with err; nil restores pass-through.
func (f *FailingRemote) SetSelectError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectErr = err
}

// Inserts returns how many Insert calls reached the wrapped database.
func (f *FailingRemote) Inserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

// Updates returns how many Update calls reached the wrapped database.
func (f *FailingRemote) Updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *FailingRemote) Insert(ctx context.Context, table string, row fieldsync.Row) (string, error) {
	f.mu.Lock()
	if err := f.insertErr; err != nil {
		f.mu.Unlock()
		return "", err
	}
	f.inserts++
	f.mu.Unlock()
	return f.inner.Insert(ctx, table, row)
}

func (f *FailingRemote) Update(ctx context.Context, table, id string, patch fieldsync.Row) error {
	f.mu.Lock()
	if err := f.updateErr; err != nil {
		f.mu.Unlock()
		return err
	}
	f.updates++
	f.mu.Unlock()
	return f.inner.Update(ctx, table, id, patch)
}

func (f *FailingRemote) Select(ctx context.Context, table string, filter fieldsync.Row) ([]fieldsync.Row, error) {
	f.mu.Lock()
	err := f.selectErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.Select(ctx, table, filter)
}
