// Package ingest implements the incremental upload protocol: determine the
// resume point from the upload ledger, project only the rows past it, persist
// them batch-wise, and advance the ledger watermark. The persist-then-advance
// ordering makes a crash recoverable: the worst case on restart is a
// redundant re-upload of rows written but not yet watermark-recorded, never a
// gap.
package ingest

import (
	"context"
	"errors"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/metrics"
	"epingest/internal/project"
	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

const stage = "uploader"

// DefaultBatchSize is the number of readings persisted per batch commit when
// the configuration does not override it.
const DefaultBatchSize = 500

// Uploader ingests one time series stream at a time. One IngestionKey must
// never be processed by two Uploaders concurrently; the ledger has no
// per-key locking, so concurrent writers could corrupt the watermark.
// Distinct keys are safe to process in parallel.
type Uploader struct {
	ledger    repository.LedgerRepository
	readings  repository.ReadingRepository
	recorder  metrics.Recorder
	batchSize int
}

// NewUploader creates a new Uploader. batchSize <= 0 selects
// DefaultBatchSize.
func NewUploader(ledger repository.LedgerRepository, readings repository.ReadingRepository, recorder metrics.Recorder, batchSize int) *Uploader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if recorder == nil {
		recorder = metrics.NewNoopRecorder()
	}
	return &Uploader{
		ledger:    ledger,
		readings:  readings,
		recorder:  recorder,
		batchSize: batchSize,
	}
}

// Ingest uploads the given key's readings from the source table, resuming
// strictly after the ledger watermark. Re-running Ingest on an unchanged
// table and ledger is idempotent: a stream previously ingested through the
// simulation end datetime is skipped without touching the data store.
//
// On a data store failure the remaining batches for the key are abandoned,
// the ledger is left InProgress at the last durably advanced watermark, and
// the error is surfaced; retrying is the caller's decision.
func (u *Uploader) Ingest(ctx context.Context, key model.IngestionKey, table model.WideTable, settings model.SimulationSettings) (model.IngestOutcome, error) {
	outcome := model.IngestOutcome{Key: key}
	started := time.Now()

	// 1. Whole-run completeness: a prior run that ingested through the
	// simulation end datetime is skipped with no further I/O.
	complete, err := u.ledger.IsAlreadyComplete(ctx, key, settings.EndDatetime)
	if err != nil {
		return u.fail(ctx, outcome, exception.New(stage, "ledger completeness check failed", err))
	}
	if complete {
		logger.Debugf("Key %s already complete through %s; skipping.", key, settings.EndDatetime.Format(model.DatetimeLayout))
		outcome.Kind = model.OutcomeSkipped
		u.recorder.RecordKeyOutcome(ctx, outcome)
		return outcome, nil
	}

	// 2. Resume point. InProgress is treated identically to NotStarted:
	// resume from the watermark, not from scratch. A watermark on a
	// NotStarted entry is contradictory and is surfaced, not repaired.
	var watermark *time.Time
	entry, err := u.ledger.Get(ctx, key)
	switch {
	case errors.Is(err, repository.ErrLedgerEntryNotFound):
		// First encounter of this key; the entry is created lazily below.
	case err != nil:
		return u.fail(ctx, outcome, exception.New(stage, "ledger lookup failed", err))
	default:
		if entry.Status == model.StatusNotStarted && entry.LastUploadedAt != nil {
			return u.fail(ctx, outcome, exception.Newf(stage, exception.ErrLedgerInconsistency,
				"key %s has watermark %s but status %s", key,
				entry.LastUploadedAt.Format(model.DatetimeLayout), entry.Status))
		}
		watermark = entry.LastUploadedAt
	}

	if err := u.ledger.MarkStatus(ctx, key, model.StatusInProgress, 0); err != nil {
		return u.fail(ctx, outcome, exception.New(stage, "failed to mark key in progress", err))
	}

	// 3. Project and restrict to this key's stream.
	projected, err := project.Project(table, settings)
	if err != nil {
		return u.fail(ctx, outcome, err)
	}
	stream := make([]model.CanonicalReading, 0, len(table.Rows))
	for _, r := range projected {
		if r.Key() == key {
			stream = append(stream, r)
		}
	}

	// 4. The resume scan requires time order; verify before any write.
	for i := 1; i < len(stream); i++ {
		if stream[i].Datetime.Before(stream[i-1].Datetime) {
			return u.fail(ctx, outcome, exception.Newf(stage, exception.ErrUnorderedSourceTable,
				"key %s: row %d (%s) precedes row %d (%s)", key,
				i, stream[i].Datetime.Format(model.DatetimeLayout),
				i-1, stream[i-1].Datetime.Format(model.DatetimeLayout)))
		}
	}

	// 5. Strict resume-after-watermark: rows at or before the watermark are
	// already persisted. Once the first new row is found, everything after
	// it uploads unconditionally.
	start := 0
	if watermark != nil {
		for start < len(stream) && !stream[start].Datetime.After(*watermark) {
			start++
		}
		outcome.Watermark = watermark
	}

	// 6. Persist batch-wise; the watermark advances only after its batch is
	// durably written.
	for i := start; i < len(stream); i += u.batchSize {
		end := i + u.batchSize
		if end > len(stream) {
			end = len(stream)
		}
		batch := stream[i:end]

		if err := u.readings.BulkInsert(ctx, batch); err != nil {
			outcome.Err = exception.Newf(stage, err, "bulk insert failed for key %s after %d rows", key, outcome.RowsUploaded)
			outcome.Kind = model.OutcomeFailed
			outcome.Duration = time.Since(started)
			u.recorder.RecordKeyOutcome(ctx, outcome)
			return outcome, outcome.Err
		}

		last := batch[len(batch)-1].Datetime
		if err := u.ledger.UpsertWatermark(ctx, key, last); err != nil {
			outcome.Err = exception.Newf(stage, err, "watermark advance failed for key %s", key)
			outcome.Kind = model.OutcomeFailed
			outcome.Duration = time.Since(started)
			u.recorder.RecordKeyOutcome(ctx, outcome)
			return outcome, outcome.Err
		}

		outcome.RowsUploaded += len(batch)
		outcome.Watermark = &last
		u.recorder.RecordBatchCommit(ctx, key)
		u.recorder.RecordRowsUploaded(ctx, key, len(batch))
	}

	// 7. Terminal mark with elapsed duration.
	outcome.Duration = time.Since(started)
	if err := u.ledger.MarkStatus(ctx, key, model.StatusCompleted, outcome.Duration); err != nil {
		return u.fail(ctx, outcome, exception.New(stage, "failed to mark key completed", err))
	}

	outcome.Kind = model.OutcomeCompleted
	u.recorder.RecordKeyOutcome(ctx, outcome)
	logger.Infof("Key %s completed: %d rows uploaded in %s.", key, outcome.RowsUploaded, outcome.Duration)
	return outcome, nil
}

// fail finalizes a failed outcome and records it.
func (u *Uploader) fail(ctx context.Context, outcome model.IngestOutcome, err error) (model.IngestOutcome, error) {
	outcome.Kind = model.OutcomeFailed
	outcome.Err = err
	u.recorder.RecordKeyOutcome(ctx, outcome)
	return outcome, err
}
