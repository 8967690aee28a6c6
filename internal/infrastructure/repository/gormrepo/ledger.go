// Package gormrepo implements the persistence ports on GORM. It backs the
// upload ledger and the readings sink with whichever SQL dialect the gormdb
// provider opened.
package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/support/exception"
)

const ledgerStage = "ledger-store"

// ledgerRecord is the row shape of the upload ledger table. The three key
// columns form the composite primary key; one row tracks one time series
// stream.
type ledgerRecord struct {
	BuildingID          int        `gorm:"column:buildingid;primaryKey"`
	VariableName        string     `gorm:"column:variablename;primaryKey"`
	SubvariableName     string     `gorm:"column:subvariablename;primaryKey"`
	Status              string     `gorm:"column:status"`
	LastUploadedAt      *time.Time `gorm:"column:lastuploadeddatetime"`
	LastDurationSeconds float64    `gorm:"column:lastdurationseconds"`
}

// TableName maps ledgerRecord to its table.
func (ledgerRecord) TableName() string { return "uploadledger" }

func (r ledgerRecord) toEntry() *model.LedgerEntry {
	entry := &model.LedgerEntry{
		Key: model.IngestionKey{
			BuildingID:      r.BuildingID,
			VariableName:    r.VariableName,
			SubvariableName: r.SubvariableName,
		},
		Status:              model.LedgerStatus(r.Status),
		LastDurationSeconds: r.LastDurationSeconds,
	}
	if r.LastUploadedAt != nil {
		ts := r.LastUploadedAt.UTC()
		entry.LastUploadedAt = &ts
	}
	return entry
}

// LedgerRepository is the GORM implementation of
// repository.LedgerRepository.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a ledger repository on the given connection.
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func keyScope(db *gorm.DB, key model.IngestionKey) *gorm.DB {
	return db.Where("buildingid = ? AND variablename = ? AND subvariablename = ?",
		key.BuildingID, key.VariableName, key.SubvariableName)
}

// Get returns the entry for key, or repository.ErrLedgerEntryNotFound.
func (r *LedgerRepository) Get(ctx context.Context, key model.IngestionKey) (*model.LedgerEntry, error) {
	var rec ledgerRecord
	err := keyScope(r.db.WithContext(ctx), key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLedgerEntryNotFound
	}
	if err != nil {
		return nil, exception.Newf(ledgerStage, err, "ledger lookup for key %s", key)
	}
	return rec.toEntry(), nil
}

// UpsertWatermark advances the key's watermark to max(existing, ts). The
// guard in the UPDATE keeps the watermark monotonic even when calls arrive
// out of order.
func (r *LedgerRepository) UpsertWatermark(ctx context.Context, key model.IngestionKey, ts time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensure(tx, key); err != nil {
			return err
		}
		return keyScope(tx.Model(&ledgerRecord{}), key).
			Where("lastuploadeddatetime IS NULL OR lastuploadeddatetime < ?", ts.UTC()).
			Update("lastuploadeddatetime", ts.UTC()).Error
	})
	if err != nil {
		return exception.Newf(ledgerStage, err, "watermark upsert for key %s", key)
	}
	return nil
}

// MarkStatus sets the key's status and, for a positive duration, the elapsed
// seconds. The entry is created lazily on first mark.
func (r *LedgerRepository) MarkStatus(ctx context.Context, key model.IngestionKey, status model.LedgerStatus, duration time.Duration) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensure(tx, key); err != nil {
			return err
		}
		updates := map[string]interface{}{"status": string(status)}
		if duration > 0 {
			updates["lastdurationseconds"] = duration.Seconds()
		}
		return keyScope(tx.Model(&ledgerRecord{}), key).Updates(updates).Error
	})
	if err != nil {
		return exception.Newf(ledgerStage, err, "status mark for key %s", key)
	}
	return nil
}

// IsAlreadyComplete reports whether the key is Completed with a watermark
// exactly at endTs.
func (r *LedgerRepository) IsAlreadyComplete(ctx context.Context, key model.IngestionKey, endTs time.Time) (bool, error) {
	entry, err := r.Get(ctx, key)
	if errors.Is(err, repository.ErrLedgerEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if entry.Status != model.StatusCompleted || entry.LastUploadedAt == nil {
		return false, nil
	}
	return entry.LastUploadedAt.Equal(endTs), nil
}

// ensure inserts the key's row with NotStarted status if it does not exist.
func (r *LedgerRepository) ensure(tx *gorm.DB, key model.IngestionKey) error {
	rec := ledgerRecord{
		BuildingID:      key.BuildingID,
		VariableName:    key.VariableName,
		SubvariableName: key.SubvariableName,
		Status:          string(model.StatusNotStarted),
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

var _ repository.LedgerRepository = (*LedgerRepository)(nil)
