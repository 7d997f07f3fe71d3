package fieldsync

import (
	"context"
	"io"
)

// RemoteStorage is the durable remote object storage photos are uploaded to.
type RemoteStorage interface {
	// Upload stores size bytes read from r under key and returns the URL
	// the object can be fetched from. Uploading the same key twice overwrites.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// ValidateSetup verifies that the storage is reachable and the bucket exists.
	ValidateSetup(ctx context.Context) error
}
