// Package sqlite registers the SQLite dialector with gormdb.
package sqlite

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"epingest/internal/config"
	"epingest/internal/infrastructure/database/gormdb"
	"epingest/internal/support/exception"
)

func init() {
	gormdb.RegisterDialector("sqlite", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		path := cfg.Path
		if path == "" {
			path = cfg.Database
		}
		if path == "" {
			return nil, exception.Newf("sqlite", nil, "sqlite database path cannot be empty")
		}
		return sqlite.Open(path), nil
	})
}
