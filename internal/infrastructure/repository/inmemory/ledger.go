// Package inmemory provides map-backed implementations of the persistence
// ports. They honor the same contracts as the SQL-backed implementations
// (monotonic watermarks, lazy entry creation) and are used by tests and dry
// runs.
package inmemory

import (
	"context"
	"sync"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
)

// LedgerRepository is an in-memory implementation of
// repository.LedgerRepository. Safe for concurrent use across distinct keys.
type LedgerRepository struct {
	mu      sync.RWMutex
	entries map[model.IngestionKey]*model.LedgerEntry
}

// NewLedgerRepository creates an empty in-memory ledger.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{entries: make(map[model.IngestionKey]*model.LedgerEntry)}
}

// Get returns the entry for key, or repository.ErrLedgerEntryNotFound.
func (r *LedgerRepository) Get(ctx context.Context, key model.IngestionKey) (*model.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[key]
	if !ok {
		return nil, repository.ErrLedgerEntryNotFound
	}
	clone := *entry
	if entry.LastUploadedAt != nil {
		ts := *entry.LastUploadedAt
		clone.LastUploadedAt = &ts
	}
	return &clone, nil
}

// UpsertWatermark advances the key's watermark to max(existing, ts). The
// watermark never regresses, even when calls arrive out of order.
func (r *LedgerRepository) UpsertWatermark(ctx context.Context, key model.IngestionKey, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.ensure(key)
	if entry.LastUploadedAt == nil || ts.After(*entry.LastUploadedAt) {
		t := ts
		entry.LastUploadedAt = &t
	}
	return nil
}

// MarkStatus sets the key's status and, for Completed, the elapsed duration.
func (r *LedgerRepository) MarkStatus(ctx context.Context, key model.IngestionKey, status model.LedgerStatus, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.ensure(key)
	entry.Status = status
	if duration > 0 {
		entry.LastDurationSeconds = duration.Seconds()
	}
	return nil
}

// IsAlreadyComplete reports whether the key is Completed with a watermark
// exactly at endTs.
func (r *LedgerRepository) IsAlreadyComplete(ctx context.Context, key model.IngestionKey, endTs time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[key]
	if !ok || entry.LastUploadedAt == nil {
		return false, nil
	}
	return entry.Status == model.StatusCompleted && entry.LastUploadedAt.Equal(endTs), nil
}

// ensure returns the entry for key, creating it lazily. Callers hold the
// write lock.
func (r *LedgerRepository) ensure(key model.IngestionKey) *model.LedgerEntry {
	entry, ok := r.entries[key]
	if !ok {
		entry = &model.LedgerEntry{Key: key, Status: model.StatusNotStarted}
		r.entries[key] = entry
	}
	return entry
}

var _ repository.LedgerRepository = (*LedgerRepository)(nil)
