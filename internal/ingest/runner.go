package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/metrics"
	"epingest/internal/project"
	"epingest/internal/source"
	"epingest/internal/support/logger"
)

// Runner ingests every variable table of one building's simulation output
// directory. Keys are partitioned across a bounded worker pool; each key is
// processed by exactly one worker, which preserves the single-writer-per-key
// contract. One key's failure is recorded in the run report and never aborts
// sibling keys.
type Runner struct {
	uploader  *Uploader
	buildings repository.BuildingRepository
	recorder  metrics.Recorder
	workers   int
}

// NewRunner creates a new Runner. workers <= 0 selects sequential execution.
func NewRunner(uploader *Uploader, buildings repository.BuildingRepository, recorder metrics.Recorder, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	return &Runner{uploader: uploader, buildings: buildings, recorder: recorder, workers: workers}
}

// keyJob is one unit of work: a single ingestion key and the wide table its
// readings come from.
type keyJob struct {
	key   model.IngestionKey
	table model.WideTable
}

// RunBuilding loads every CSV table under dir and ingests all keys they
// project onto. It returns the per-key run report together with the
// aggregated error of any failed keys; the report is valid either way.
func (r *Runner) RunBuilding(ctx context.Context, buildingID int, dir string, settings model.SimulationSettings) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:      uuid.New().String(),
		BuildingID: buildingID,
		StartedAt:  time.Now(),
	}
	var runErr *multierror.Error

	// The sink's readings reference the buildings table, so the parent row
	// must exist before the first batch lands.
	if err := r.ensureBuilding(ctx, buildingID); err != nil {
		return report, err
	}

	paths, err := source.ListTables(dir)
	if err != nil {
		return report, err
	}
	logger.Infof("Run %s: building %d, %d variable tables under %s.", report.RunID, buildingID, len(paths), dir)

	var jobs []keyJob
	for _, path := range paths {
		table, err := source.LoadWideTable(path, buildingID)
		if err != nil {
			report.Outcomes = append(report.Outcomes, model.IngestOutcome{
				Key:  model.IngestionKey{BuildingID: buildingID, SubvariableName: model.NoSubdivision},
				Kind: model.OutcomeFailed,
				Err:  err,
			})
			runErr = multierror.Append(runErr, err)
			continue
		}
		keys, err := project.Keys(table)
		if err != nil {
			report.Outcomes = append(report.Outcomes, model.IngestOutcome{
				Key: model.IngestionKey{
					BuildingID:      buildingID,
					VariableName:    project.VariableName(table.Category),
					SubvariableName: model.NoSubdivision,
				},
				Kind: model.OutcomeFailed,
				Err:  err,
			})
			runErr = multierror.Append(runErr, err)
			continue
		}
		for _, key := range keys {
			jobs = append(jobs, keyJob{key: key, table: table})
		}
	}

	outcomes := r.ingestAll(ctx, jobs, settings)
	report.Outcomes = append(report.Outcomes, outcomes...)
	for _, o := range outcomes {
		if o.Kind == model.OutcomeFailed && o.Err != nil {
			runErr = multierror.Append(runErr, o.Err)
		}
	}

	report.FinishedAt = time.Now()
	r.recorder.RecordRunDuration(ctx, buildingID, report.FinishedAt.Sub(report.StartedAt))

	skipped, completed, failed := report.Counts()
	logger.Infof("Run %s finished: %d skipped, %d completed, %d failed.", report.RunID, skipped, completed, failed)
	return report, runErr.ErrorOrNil()
}

// ensureBuilding registers a bare building row when none exists yet. An
// already-registered building keeps its attributes untouched.
func (r *Runner) ensureBuilding(ctx context.Context, buildingID int) error {
	_, err := r.buildings.Get(ctx, buildingID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrBuildingNotFound) {
		return err
	}
	logger.Infof("Registering building %d.", buildingID)
	return r.buildings.Upsert(ctx, &model.Building{ID: buildingID})
}

// ingestAll spreads jobs across the worker pool and collects outcomes. Job
// order within the result is not guaranteed under concurrency.
func (r *Runner) ingestAll(ctx context.Context, jobs []keyJob, settings model.SimulationSettings) []model.IngestOutcome {
	if len(jobs) == 0 {
		return nil
	}

	jobCh := make(chan keyJob)
	outcomes := make([]model.IngestOutcome, 0, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := r.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if ctx.Err() != nil {
					// Abandoned mid-run: the key stays at whatever the
					// ledger already recorded and resumes next run.
					mu.Lock()
					outcomes = append(outcomes, model.IngestOutcome{
						Key:  job.key,
						Kind: model.OutcomeFailed,
						Err:  ctx.Err(),
					})
					mu.Unlock()
					continue
				}
				outcome, _ := r.uploader.Ingest(ctx, job.key, job.table, settings)
				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	return outcomes
}
