package vault

import (
	"context"
	"fmt"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"
)

// NewVaultFromConfig creates a RemoteStorage implementation based on the storage config type.
func NewVaultFromConfig(ctx context.Context, cfg config.StorageConfig) (fieldsync.RemoteStorage, error) {
	switch cfg.Type {
	case "memory":
		name := cfg.Bucket
		if name == "" {
			name = "fieldsync"
		}
		return NewMemoryVault(name), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem vault requires root to be set")
		}
		v, err := NewFileSystemVault(cfg.Root, cfg.PublicURL)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "minio":
		v, err := NewMinioVault(cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
