package inmemory

import (
	"context"
	"sort"
	"sync"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
)

// ReadingRepository is an in-memory implementation of
// repository.ReadingRepository. Append-only, like the real sink.
type ReadingRepository struct {
	mu       sync.RWMutex
	readings []model.CanonicalReading
	nextID   int64

	// FailNextInsert makes the next BulkInsert return the given error, for
	// exercising partial-failure paths in tests.
	failNext error
}

// NewReadingRepository creates an empty in-memory sink.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{nextID: 1}
}

// TableExists always reports true for the in-memory sink.
func (r *ReadingRepository) TableExists(ctx context.Context) (bool, error) {
	return true, nil
}

// BulkInsert appends readings, assigning surrogate IDs.
func (r *ReadingRepository) BulkInsert(ctx context.Context, readings []model.CanonicalReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	for _, reading := range readings {
		reading.ID = r.nextID
		r.nextID++
		r.readings = append(r.readings, reading)
	}
	return nil
}

// Query returns readings matching the filter, datetime ascending.
func (r *ReadingRepository) Query(ctx context.Context, filter repository.ReadingFilter) ([]model.CanonicalReading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.CanonicalReading
	for _, reading := range r.readings {
		if matches(reading, filter) {
			out = append(out, reading)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out, nil
}

// FailNextInsert arms a one-shot insert failure.
func (r *ReadingRepository) FailNextInsert(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// All returns a snapshot of every stored reading, in insertion order.
func (r *ReadingRepository) All() []model.CanonicalReading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.CanonicalReading, len(r.readings))
	copy(out, r.readings)
	return out
}

func matches(reading model.CanonicalReading, filter repository.ReadingFilter) bool {
	if filter.BuildingID != 0 && reading.BuildingID != filter.BuildingID {
		return false
	}
	if filter.VariableName != "" && reading.VariableName != filter.VariableName {
		return false
	}
	if filter.TimeResolution != 0 && reading.TimeResolution != filter.TimeResolution {
		return false
	}
	if filter.StartDatetime != nil && reading.Datetime.Before(*filter.StartDatetime) {
		return false
	}
	if filter.EndDatetime != nil && reading.Datetime.After(*filter.EndDatetime) {
		return false
	}
	if filter.SubvariableName != "" {
		var field string
		switch filter.SubvariableType {
		case "schedulename":
			field = reading.ScheduleName
		case "zonename":
			field = reading.ZoneName
		case "surfacename":
			field = reading.SurfaceName
		case "systemnodename":
			field = reading.SystemNodeName
		default:
			field = reading.SubvariableName()
		}
		if field != filter.SubvariableName {
			return false
		}
	}
	return true
}

var _ repository.ReadingRepository = (*ReadingRepository)(nil)
