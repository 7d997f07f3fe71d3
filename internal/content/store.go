package content

import "io"

// blobStore abstracts the storage mechanics for a content store.
// Concurrency is managed by the caller (contentStore.mu), so stores
// do not need to be safe for concurrent use.
type blobStore interface {
	// write stores data under key, replacing any previous content.
	write(key string, data []byte) error

	// open returns a reader for the content under key.
	// Returns an error wrapping fs.ErrNotExist if the key is unknown.
	open(key string) (io.ReadCloser, error)

	// remove deletes the content under key. Missing keys are not an error.
	remove(key string) error

	// sizeOf returns the stored size of key, or 0 if it does not exist.
	sizeOf(key string) (int64, error)

	// total returns total bytes of all stored content.
	total() (int64, error)
}
