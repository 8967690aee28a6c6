// Package migration manages the sink schema with embedded SQL migrations.
// Each supported dialect has its own migration directory; the migrator picks
// the one matching the connection's database type.
package migration

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

const stage = "migration"

//go:embed migrations
var migrationsFS embed.FS

// Migrator applies the sink schema to a connection.
type Migrator struct {
	db     *gorm.DB
	dbType string
}

// NewMigrator creates a migrator for the given connection and database type
// ("postgres", "mysql", or "sqlite").
func NewMigrator(db *gorm.DB, dbType string) *Migrator {
	return &Migrator{db: db, dbType: dbType}
}

// Up applies all pending migrations. Already being at the latest version is
// not an error.
func (m *Migrator) Up() error {
	return m.run(func(inst *migrate.Migrate) error { return inst.Up() })
}

// Down rolls back all migrations.
func (m *Migrator) Down() error {
	return m.run(func(inst *migrate.Migrate) error { return inst.Down() })
}

func (m *Migrator) run(step func(*migrate.Migrate) error) error {
	inst, err := m.instance()
	if err != nil {
		return err
	}
	defer inst.Close()

	logger.Infof("Applying %s schema migrations.", m.dbType)
	if err := step(inst); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("Schema already up to date.")
			return nil
		}
		return exception.Newf(stage, err, "migration failed for dialect %s", m.dbType)
	}
	logger.Infof("Schema migrations applied.")
	return nil
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return nil, exception.New(stage, "failed to get underlying sql.DB", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+m.dbType)
	if err != nil {
		return nil, exception.Newf(stage, err, "no embedded migrations for dialect %s", m.dbType)
	}

	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return nil, err
	}

	inst, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return nil, exception.New(stage, "failed to create migrate instance", err)
	}
	return inst, nil
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (database.Driver, error) {
	switch m.dbType {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{})
	default:
		return nil, exception.Newf(stage, nil, "unsupported database type for migration: %s", m.dbType)
	}
}
