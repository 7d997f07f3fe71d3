package content

import (
	"fmt"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"
)

// DefaultMaxSize is the default content store cap (2GiB).
const DefaultMaxSize int64 = 2 << 30

// NewContentStoreFromConfig creates a ContentStore implementation based on the config type.
func NewContentStoreFromConfig(cfg config.ContentConfig) (fieldsync.ContentStore, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryContentStore(maxSize), nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem content store requires dir to be set")
		}
		return NewFileSystemContentStore(cfg.Dir, maxSize)
	default:
		return nil, fmt.Errorf("unknown content store type: %s", cfg.Type)
	}
}
