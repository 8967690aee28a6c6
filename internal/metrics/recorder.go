// Package metrics abstracts metric collection for the ingestion pipeline so
// that the uploader and runner do not depend on a concrete backend.
package metrics

import (
	"context"
	"time"

	"epingest/internal/domain/model"
)

// Recorder records ingestion metrics. Implementations must be safe for
// concurrent use; the runner calls them from its worker pool.
type Recorder interface {
	// RecordKeyOutcome records the terminal outcome of one key's ingestion.
	RecordKeyOutcome(ctx context.Context, outcome model.IngestOutcome)

	// RecordRowsUploaded records rows durably written for a key.
	RecordRowsUploaded(ctx context.Context, key model.IngestionKey, count int)

	// RecordBatchCommit records one persist-then-advance batch commit.
	RecordBatchCommit(ctx context.Context, key model.IngestionKey)

	// RecordRunDuration records the wall time of a whole batch run.
	RecordRunDuration(ctx context.Context, buildingID int, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing. It is the default when
// metrics are disabled in configuration.
type NoopRecorder struct{}

// NewNoopRecorder creates a new NoopRecorder.
func NewNoopRecorder() Recorder {
	return &NoopRecorder{}
}

func (r *NoopRecorder) RecordKeyOutcome(ctx context.Context, outcome model.IngestOutcome) {}

func (r *NoopRecorder) RecordRowsUploaded(ctx context.Context, key model.IngestionKey, count int) {}

func (r *NoopRecorder) RecordBatchCommit(ctx context.Context, key model.IngestionKey) {}

func (r *NoopRecorder) RecordRunDuration(ctx context.Context, buildingID int, d time.Duration) {}

var _ Recorder = (*NoopRecorder)(nil)
