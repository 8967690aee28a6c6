package retrieve

import (
	"context"
	"errors"
	"testing"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
	"epingest/internal/infrastructure/repository/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedService(t *testing.T) (*Service, *inmemory.ReadingRepository) {
	t.Helper()
	readings := inmemory.NewReadingRepository()
	buildings := inmemory.NewBuildingRepository()

	require.NoError(t, buildings.Upsert(context.Background(), &model.Building{ID: 1, Location: "Chicago"}))

	t1 := time.Date(2013, 5, 1, 0, 5, 0, 0, time.UTC)
	t2 := time.Date(2013, 5, 1, 0, 10, 0, 0, time.UTC)
	require.NoError(t, readings.BulkInsert(context.Background(), []model.CanonicalReading{
		{BuildingID: 1, Datetime: t1, TimeResolution: 5, VariableName: "Zone Air Temperature",
			ScheduleName: "NA", ZoneName: "ZONE A", SurfaceName: "NA", SystemNodeName: "NA", Value: 21.1},
		{BuildingID: 1, Datetime: t2, TimeResolution: 5, VariableName: "Zone Air Temperature",
			ScheduleName: "NA", ZoneName: "ZONE A", SurfaceName: "NA", SystemNodeName: "NA", Value: 21.3},
		{BuildingID: 1, Datetime: t1, TimeResolution: 5, VariableName: "Zone Air Temperature",
			ScheduleName: "NA", ZoneName: "ZONE B", SurfaceName: "NA", SystemNodeName: "NA", Value: 22.2},
	}))

	return NewService(readings, buildings), readings
}

func TestQuery_RequiresBuilding(t *testing.T) {
	svc, _ := seedService(t)
	_, err := svc.Query(context.Background(), repository.ReadingFilter{})
	assert.Error(t, err)
}

func TestQuery_RejectsInvertedWindow(t *testing.T) {
	svc, _ := seedService(t)
	start := time.Date(2013, 5, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2013, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Query(context.Background(), repository.ReadingFilter{
		BuildingID:    1,
		StartDatetime: &start,
		EndDatetime:   &end,
	})
	assert.Error(t, err)
}

func TestVariable_ReturnsSeriesWithBuilding(t *testing.T) {
	svc, _ := seedService(t)

	series, err := svc.Variable(context.Background(), 1, "Zone Air Temperature", "zonename", "ZONE A", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, series.Building)
	assert.Equal(t, "Chicago", series.Building.Location)
	require.Len(t, series.Readings, 2)
	assert.Equal(t, 21.1, series.Readings[0].Value)
	assert.Equal(t, 21.3, series.Readings[1].Value)
}

func TestVariable_UnknownBuilding(t *testing.T) {
	svc, _ := seedService(t)
	_, err := svc.Variable(context.Background(), 42, "Zone Air Temperature", "", "", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrBuildingNotFound))
}
