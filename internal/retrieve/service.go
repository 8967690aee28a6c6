// Package retrieve reads ingested time series back out of the sink, the
// counterpart of the ingestion pipeline for analysis and export consumers.
package retrieve

import (
	"context"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

const stage = "retrieve"

// Series is one retrieved time series with its building metadata.
type Series struct {
	Building *model.Building
	Readings []model.CanonicalReading
}

// Service answers time series queries against the reading sink.
type Service struct {
	readings  repository.ReadingRepository
	buildings repository.BuildingRepository
}

// NewService creates a retrieval service.
func NewService(readings repository.ReadingRepository, buildings repository.BuildingRepository) *Service {
	return &Service{readings: readings, buildings: buildings}
}

// Query returns the readings matching the filter, datetime ascending. The
// filter must name a building.
func (s *Service) Query(ctx context.Context, filter repository.ReadingFilter) ([]model.CanonicalReading, error) {
	if filter.BuildingID == 0 {
		return nil, exception.Newf(stage, nil, "a building ID is required for retrieval")
	}
	if filter.StartDatetime != nil && filter.EndDatetime != nil && filter.EndDatetime.Before(*filter.StartDatetime) {
		return nil, exception.Newf(stage, nil, "end datetime %s precedes start datetime %s",
			filter.EndDatetime.Format(model.DatetimeLayout), filter.StartDatetime.Format(model.DatetimeLayout))
	}

	ok, err := s.readings.TableExists(ctx)
	if err != nil {
		return nil, exception.New(stage, "sink table check failed", err)
	}
	if !ok {
		return nil, exception.Newf(stage, nil, "sink table does not exist; run migrations first")
	}

	readings, err := s.readings.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Retrieved %d readings for building %d.", len(readings), filter.BuildingID)
	return readings, nil
}

// Variable returns one variable's series for a building over an optional time
// window, together with the building's metadata.
func (s *Service) Variable(ctx context.Context, buildingID int, variableName, subvariableType, subvariableName string, start, end *time.Time) (*Series, error) {
	building, err := s.buildings.Get(ctx, buildingID)
	if err != nil {
		return nil, exception.Newf(stage, err, "building %d", buildingID)
	}

	readings, err := s.Query(ctx, repository.ReadingFilter{
		BuildingID:      buildingID,
		VariableName:    variableName,
		SubvariableType: subvariableType,
		SubvariableName: subvariableName,
		StartDatetime:   start,
		EndDatetime:     end,
	})
	if err != nil {
		return nil, err
	}
	return &Series{Building: building, Readings: readings}, nil
}
