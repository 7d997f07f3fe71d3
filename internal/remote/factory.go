package remote

import (
	"fmt"

	"fieldsync/internal/config"
)

// NewDatabaseFromConfig creates a remote Database based on the remote config type.
func NewDatabaseFromConfig(cfg config.RemoteConfig) (Database, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryDatabase(), nil
	case "postgres":
		db, err := NewPostgresDatabase(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := NewSQLiteDatabase(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown remote database type: %s", cfg.Type)
	}
}
