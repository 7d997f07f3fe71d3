package database

import (
	"fmt"
	"os"
	"path/filepath"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// Schema migrations are reported through log.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, deviceID string, log fieldsync.Logger) (fieldsync.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return openDatabase(filepath.Join(cfg.DataDir, deviceID+".db"), log)
	case "memory":
		return openDatabase(":memory:", log)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// openDatabase keeps a failed open from returning a typed nil interface.
func openDatabase(path string, log fieldsync.Logger) (fieldsync.Database, error) {
	db, err := NewSQLiteDatabase(path, log)
	if err != nil {
		return nil, err
	}
	return db, nil
}
