package gormrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/support/exception"
)

const buildingsStage = "building-store"

// BuildingRepository is the GORM implementation of
// repository.BuildingRepository.
type BuildingRepository struct {
	db *gorm.DB
}

// NewBuildingRepository creates a building repository on the given
// connection.
func NewBuildingRepository(db *gorm.DB) *BuildingRepository {
	return &BuildingRepository{db: db}
}

// Get returns the building with the given ID, or
// repository.ErrBuildingNotFound.
func (r *BuildingRepository) Get(ctx context.Context, id int) (*model.Building, error) {
	var b model.Building
	err := r.db.WithContext(ctx).First(&b, "buildingid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrBuildingNotFound
	}
	if err != nil {
		return nil, exception.Newf(buildingsStage, err, "building lookup %d", id)
	}
	return &b, nil
}

// List returns every building, ID ascending.
func (r *BuildingRepository) List(ctx context.Context) ([]model.Building, error) {
	var buildings []model.Building
	if err := r.db.WithContext(ctx).Order("buildingid ASC").Find(&buildings).Error; err != nil {
		return nil, exception.New(buildingsStage, "building list", err)
	}
	return buildings, nil
}

// Upsert inserts the building or updates its attributes in place.
func (r *BuildingRepository) Upsert(ctx context.Context, b *model.Building) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buildingid"}},
			UpdateAll: true,
		}).
		Create(b).Error
	if err != nil {
		return exception.Newf(buildingsStage, err, "building upsert %d", b.ID)
	}
	return nil
}

var _ repository.BuildingRepository = (*BuildingRepository)(nil)
