// Package repository defines the persistence ports of the ingestion
// pipeline: the upload ledger and the reading sink. Implementations live
// under internal/infrastructure/repository.
package repository

import (
	"context"
	"errors"
	"time"

	"epingest/internal/domain/model"
)

// ErrLedgerEntryNotFound is returned by LedgerRepository.Get when no entry
// exists for the requested key.
var ErrLedgerEntryNotFound = errors.New("ledger entry not found")

// LedgerRepository is the durable record of upload progress per ingestion
// key. Entries are created lazily on first mutation and never deleted.
//
// Implementations must keep LastUploadedAt monotonic: UpsertWatermark stores
// max(existing, ts) so that out-of-order calls cannot regress the watermark.
type LedgerRepository interface {
	// Get returns the entry for key, or ErrLedgerEntryNotFound.
	Get(ctx context.Context, key model.IngestionKey) (*model.LedgerEntry, error)

	// UpsertWatermark advances the key's watermark to max(existing, ts),
	// creating the entry if it does not exist.
	UpsertWatermark(ctx context.Context, key model.IngestionKey, ts time.Time) error

	// MarkStatus sets the key's status, creating the entry if it does not
	// exist. duration records the elapsed upload time for Completed marks;
	// pass zero otherwise.
	MarkStatus(ctx context.Context, key model.IngestionKey, status model.LedgerStatus, duration time.Duration) error

	// IsAlreadyComplete reports whether a prior run fully ingested this key
	// through endTs: status Completed and watermark equal to endTs.
	IsAlreadyComplete(ctx context.Context, key model.IngestionKey, endTs time.Time) (bool, error)
}

// ErrBuildingNotFound is returned by BuildingRepository.Get when no building
// exists for the requested ID.
var ErrBuildingNotFound = errors.New("building not found")

// BuildingRepository holds the metadata parent rows for ingested readings.
type BuildingRepository interface {
	// Get returns the building with the given ID, or ErrBuildingNotFound.
	Get(ctx context.Context, id int) (*model.Building, error)

	// List returns every building, ID ascending.
	List(ctx context.Context) ([]model.Building, error)

	// Upsert inserts the building or updates its attributes in place.
	Upsert(ctx context.Context, b *model.Building) error
}

// ReadingFilter narrows a reading query. Zero values mean "no filter".
// SubvariableType selects which subdivision column SubvariableName matches
// against: "schedulename", "zonename", "surfacename", or "systemnodename".
type ReadingFilter struct {
	BuildingID      int
	StartDatetime   *time.Time
	EndDatetime     *time.Time
	TimeResolution  int
	VariableName    string
	SubvariableType string
	SubvariableName string
}

// ReadingRepository is the relational sink for canonical readings. The sink
// table enforces no natural uniqueness constraint; duplicate avoidance is
// guaranteed solely by the ledger watermark discipline.
type ReadingRepository interface {
	// TableExists reports whether the sink table is present.
	TableExists(ctx context.Context) (bool, error)

	// BulkInsert appends readings to the sink. Append-only; there is no
	// update path.
	BulkInsert(ctx context.Context, readings []model.CanonicalReading) error

	// Query returns readings matching the filter, datetime ascending.
	Query(ctx context.Context, filter ReadingFilter) ([]model.CanonicalReading, error)
}
