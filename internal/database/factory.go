package database

import (
	"fmt"
	"path/filepath"

	"symver/internal/config"
)

// NewDatabaseFromConfig opens the catalog described by the database config.
// The sqlite catalog lives at <data_dir>/<hostID>.db.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, hostID string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if hostID == "" {
			return nil, fmt.Errorf("host_id required for sqlite database")
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, hostID+".db"))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
