// Package app wires the ingestion pipeline together with uber-fx and runs
// one command per invocation: schema migration, a building ingest run, or a
// Parquet export.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"epingest/internal/config"
	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/export"
	"epingest/internal/infrastructure/database/gormdb"
	"epingest/internal/infrastructure/migration"
	"epingest/internal/infrastructure/repository/gormrepo"
	"epingest/internal/ingest"
	"epingest/internal/metrics"
	"epingest/internal/retrieve"
	"epingest/internal/storage"
	"epingest/internal/support/logger"
)

// Command is the single operation one process invocation performs.
type Command struct {
	// Name is "migrate", "ingest", or "export".
	Name string
	// BuildingID selects the building for ingest and export commands.
	BuildingID int
	// VariableName narrows an export to one variable; empty exports the
	// building's full data set.
	VariableName string
	// SubvariableType and SubvariableName narrow a per-variable export
	// further (e.g. "zonename" / "ZONE A").
	SubvariableType string
	SubvariableName string
}

// RunApplication builds the fx graph and executes the command. It returns
// when the command finishes or appCtx is cancelled.
func RunApplication(appCtx context.Context, cfg *config.Config, cmd Command) {
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, cmd),
		fx.Provide(
			newSinkDB,
			newRecorder,
			newMigrator,
			newLedgerRepository,
			newReadingRepository,
			newBuildingRepository,
			newUploader,
			newRunner,
			retrieve.NewService,
		),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, deps commandDeps) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						defer func() {
							if err := shutdowner.Shutdown(); err != nil {
								logger.Errorf("Failed to shutdown application: %v", err)
							}
						}()
						if err := runCommand(appCtx, cmd, deps); err != nil {
							logger.Errorf("Command %q failed: %v", cmd.Name, err)
						}
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					logger.Infof("Application is shutting down.")
					return gormdb.Close(deps.DB)
				},
			})
		}),
	)

	app.Run()
	if app.Err() != nil {
		logger.Fatalf("Application run failed: %v", app.Err())
	}
}

// commandDeps collects everything runCommand can need; unused members stay
// idle for commands that do not touch them.
type commandDeps struct {
	fx.In

	Cfg      *config.Config
	DB       *gorm.DB
	Migrator *migration.Migrator
	Runner   *ingest.Runner
	Service  *retrieve.Service
	Recorder metrics.Recorder
}

func runCommand(ctx context.Context, cmd Command, deps commandDeps) error {
	if prom, ok := deps.Recorder.(*metrics.PrometheusRecorder); ok && deps.Cfg.Metrics.Enabled {
		go prom.Serve(ctx, deps.Cfg.Metrics.Addr)
	}

	switch cmd.Name {
	case "migrate":
		return deps.Migrator.Up()

	case "ingest":
		settings, err := deps.Cfg.Simulation.Settings()
		if err != nil {
			return err
		}
		dir := filepath.Join(deps.Cfg.Ingest.SourceDir, fmt.Sprintf("building_%d", cmd.BuildingID))
		report, err := deps.Runner.RunBuilding(ctx, cmd.BuildingID, dir, settings)
		if report != nil {
			skipped, completed, failed := report.Counts()
			logger.Infof("Ingest run %s: %d skipped, %d completed, %d failed.", report.RunID, skipped, completed, failed)
		}
		return err

	case "export":
		exporter, err := newExporter(deps.Cfg, cmd.BuildingID)
		if err != nil {
			return err
		}
		readings, err := exportReadings(ctx, deps.Service, cmd)
		if err != nil {
			return err
		}
		uploaded, err := exporter.Export(ctx, readings)
		logger.Infof("Exported %d objects for building %d.", len(uploaded), cmd.BuildingID)
		return err

	default:
		return fmt.Errorf("unknown command %q (expected migrate, ingest, or export)", cmd.Name)
	}
}

// exportReadings fetches what the export command writes: one variable's
// series when the command names a variable, otherwise the building's full
// data set.
func exportReadings(ctx context.Context, svc *retrieve.Service, cmd Command) ([]model.CanonicalReading, error) {
	if cmd.VariableName == "" {
		return svc.Query(ctx, repository.ReadingFilter{BuildingID: cmd.BuildingID})
	}
	series, err := svc.Variable(ctx, cmd.BuildingID, cmd.VariableName, cmd.SubvariableType, cmd.SubvariableName, nil, nil)
	if err != nil {
		return nil, err
	}
	return series.Readings, nil
}

func newSinkDB(cfg *config.Config) (*gorm.DB, error) {
	dbCfg, err := cfg.SinkDatabaseConfig()
	if err != nil {
		return nil, err
	}
	return gormdb.Open(dbCfg)
}

func newRecorder(cfg *config.Config) metrics.Recorder {
	if cfg.Metrics.Enabled {
		return metrics.NewPrometheusRecorder()
	}
	return metrics.NewNoopRecorder()
}

func newMigrator(cfg *config.Config, db *gorm.DB) (*migration.Migrator, error) {
	dbCfg, err := cfg.SinkDatabaseConfig()
	if err != nil {
		return nil, err
	}
	return migration.NewMigrator(db, dbCfg.Type), nil
}

func newLedgerRepository(db *gorm.DB) repository.LedgerRepository {
	return gormrepo.NewLedgerRepository(db)
}

func newReadingRepository(db *gorm.DB) repository.ReadingRepository {
	return gormrepo.NewReadingRepository(db)
}

func newBuildingRepository(db *gorm.DB) repository.BuildingRepository {
	return gormrepo.NewBuildingRepository(db)
}

func newUploader(ledger repository.LedgerRepository, readings repository.ReadingRepository, recorder metrics.Recorder, cfg *config.Config) *ingest.Uploader {
	return ingest.NewUploader(ledger, readings, recorder, cfg.Ingest.BatchSize)
}

func newRunner(uploader *ingest.Uploader, buildings repository.BuildingRepository, recorder metrics.Recorder, cfg *config.Config) *ingest.Runner {
	return ingest.NewRunner(uploader, buildings, recorder, cfg.Ingest.Workers)
}

func newExporter(cfg *config.Config, buildingID int) (*export.Exporter, error) {
	store, err := storage.NewLocal(cfg.Export.OutputDir)
	if err != nil {
		return nil, err
	}
	baseDir := fmt.Sprintf("building_%d", buildingID)
	return export.NewExporter(store, "exports", baseDir, "SNAPPY")
}
