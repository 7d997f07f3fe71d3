package fieldsync

import "io"

// ContentStore holds the bytes of captured photos on the device.
// Keys are opaque; implementations enforce their own size cap and return
// ErrStorageFull when it would be exceeded.
type ContentStore interface {
	// Put reads r fully and stores it under key, replacing any previous content.
	// Returns the stored size and SHA-256 checksum.
	Put(key string, r io.Reader) (size int64, checksum string, err error)

	// Open returns a reader for the content stored under key.
	Open(key string) (io.ReadCloser, error)

	// Remove deletes the content under key. Missing keys are not an error.
	Remove(key string) error

	// Size returns the total bytes stored.
	Size() (int64, error)
}
