package gormrepo

import (
	"context"

	"gorm.io/gorm"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/support/exception"
)

const readingsStage = "reading-store"

// subdivisionColumns whitelists the filterable subdivision columns. Filter
// input never reaches SQL as a column name unless it is one of these.
var subdivisionColumns = map[string]string{
	"schedulename":   "schedulename",
	"zonename":       "zonename",
	"surfacename":    "surfacename",
	"systemnodename": "systemnodename",
}

// ReadingRepository is the GORM implementation of
// repository.ReadingRepository, writing to the timeseriesdata table.
type ReadingRepository struct {
	db *gorm.DB
}

// NewReadingRepository creates a readings repository on the given connection.
func NewReadingRepository(db *gorm.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// TableExists reports whether the timeseriesdata table is present.
func (r *ReadingRepository) TableExists(ctx context.Context) (bool, error) {
	return r.db.WithContext(ctx).Migrator().HasTable(&model.CanonicalReading{}), nil
}

// BulkInsert persists one batch of readings in a single statement. The caller
// sizes batches; an oversized batch is split only to stay under driver
// placeholder limits.
func (r *ReadingRepository) BulkInsert(ctx context.Context, readings []model.CanonicalReading) error {
	if len(readings) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(readings, len(readings)).Error; err != nil {
		return exception.Newf(readingsStage, exception.ErrConnection, "bulk insert of %d readings: %v", len(readings), err)
	}
	return nil
}

// Query returns readings matching the filter, datetime ascending.
func (r *ReadingRepository) Query(ctx context.Context, filter repository.ReadingFilter) ([]model.CanonicalReading, error) {
	db := r.db.WithContext(ctx).Model(&model.CanonicalReading{})

	if filter.BuildingID != 0 {
		db = db.Where("buildingid = ?", filter.BuildingID)
	}
	if filter.VariableName != "" {
		db = db.Where("variablename = ?", filter.VariableName)
	}
	if filter.TimeResolution != 0 {
		db = db.Where("timeresolution = ?", filter.TimeResolution)
	}
	if filter.StartDatetime != nil {
		db = db.Where("datetime >= ?", filter.StartDatetime.UTC())
	}
	if filter.EndDatetime != nil {
		db = db.Where("datetime <= ?", filter.EndDatetime.UTC())
	}
	if filter.SubvariableName != "" {
		if column, ok := subdivisionColumns[filter.SubvariableType]; ok {
			db = db.Where(column+" = ?", filter.SubvariableName)
		} else {
			db = db.Where(
				"schedulename = ? OR zonename = ? OR surfacename = ? OR systemnodename = ?",
				filter.SubvariableName, filter.SubvariableName, filter.SubvariableName, filter.SubvariableName,
			)
		}
	}

	var readings []model.CanonicalReading
	if err := db.Order("datetime ASC").Find(&readings).Error; err != nil {
		return nil, exception.Newf(readingsStage, err, "readings query for building %d", filter.BuildingID)
	}
	return readings, nil
}

var _ repository.ReadingRepository = (*ReadingRepository)(nil)
