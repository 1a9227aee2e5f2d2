package store

import (
	"fmt"
	"os"
	"path/filepath"

	"counseld-go/internal/config"
	"counseld-go/internal/counsel"
)

// NewStoreFromConfig creates a Database implementation based on the
// database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig) (counsel.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
