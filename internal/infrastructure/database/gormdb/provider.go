// Package gormdb opens GORM connections from named database configurations.
// Concrete dialects live in subpackages and register themselves on import, so
// a binary links only the drivers it blank-imports.
package gormdb

import (
	"sync"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"epingest/internal/config"
	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

const stage = "gormdb"

// DialectorFactory builds a gorm.Dialector from a database configuration.
type DialectorFactory func(cfg config.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
// Called from the dialect subpackages' init functions.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type %q already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// dialectorFor retrieves the registered factory for the given database type.
func dialectorFor(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, exception.Newf(stage, nil, "no dialector registered for database type %q (missing dialect import?)", dbType)
	}
	return factory, nil
}

// Open establishes a GORM connection for the given configuration and applies
// its pool settings. GORM's own SQL logging stays silent; the application
// logger covers operational logging.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	factory, err := dialectorFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, exception.Newf(stage, err, "failed to create dialector for %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, exception.Newf(stage, exception.ErrConnection, "failed to open %s connection: %v", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, exception.New(stage, "failed to get underlying sql.DB", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}

	logger.Infof("Established %s connection.", cfg.Type)
	return db, nil
}

// Close closes the connection underlying db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return exception.New(stage, "failed to get underlying sql.DB", err)
	}
	return sqlDB.Close()
}
