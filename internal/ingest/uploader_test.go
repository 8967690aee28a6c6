package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/infrastructure/repository/inmemory"
	"epingest/internal/ingest"
	"epingest/internal/support/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(t *testing.T, text string) time.Time {
	t.Helper()
	v, err := time.Parse(model.DatetimeLayout, text)
	require.NoError(t, err)
	return v
}

func facilityTable() model.WideTable {
	return model.WideTable{
		BuildingID: 1,
		Category:   "Facility_Total_HVAC_Electric_Demand_Power",
		Columns:    []string{"Whole Building:Facility Total HVAC Electric Demand Power [W]"},
		Rows: []model.WideRow{
			{TimestampRaw: "05/01  00:05:00", Values: []float64{120.5}},
			{TimestampRaw: "05/01  00:10:00", Values: []float64{130.2}},
		},
	}
}

func facilityKey() model.IngestionKey {
	return model.IngestionKey{
		BuildingID:      1,
		VariableName:    "Facility Total HVAC Electric Demand Power",
		SubvariableName: model.NoSubdivision,
	}
}

func facilitySettings(t *testing.T) model.SimulationSettings {
	t.Helper()
	return model.SimulationSettings{
		StartDatetime:      ts(t, "2013-05-01 00:05:00"),
		EndDatetime:        ts(t, "2013-05-01 00:10:00"),
		TimestepMinutes:    5,
		ReportingFrequency: "Timestep",
	}
}

func newUploader(batchSize int) (*ingest.Uploader, *inmemory.LedgerRepository, *inmemory.ReadingRepository) {
	ledger := inmemory.NewLedgerRepository()
	readings := inmemory.NewReadingRepository()
	return ingest.NewUploader(ledger, readings, nil, batchSize), ledger, readings
}

func TestIngest_EndToEnd_Facility(t *testing.T) {
	uploader, ledger, readings := newUploader(0)
	ctx := context.Background()

	outcome, err := uploader.Ingest(ctx, facilityKey(), facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 2, outcome.RowsUploaded)
	require.NotNil(t, outcome.Watermark)
	assert.Equal(t, ts(t, "2013-05-01 00:10:00"), *outcome.Watermark)

	stored := readings.All()
	require.Len(t, stored, 2)
	for _, r := range stored {
		assert.Equal(t, "Facility Total HVAC Electric Demand Power", r.VariableName)
		assert.Equal(t, model.NoSubdivision, r.ScheduleName)
		assert.Equal(t, model.NoSubdivision, r.ZoneName)
		assert.Equal(t, model.NoSubdivision, r.SurfaceName)
		assert.Equal(t, model.NoSubdivision, r.SystemNodeName)
	}
	assert.Equal(t, 120.5, stored[0].Value)
	assert.Equal(t, 130.2, stored[1].Value)

	entry, err := ledger.Get(ctx, facilityKey())
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, entry.Status)
	require.NotNil(t, entry.LastUploadedAt)
	assert.Equal(t, ts(t, "2013-05-01 00:10:00"), *entry.LastUploadedAt)
}

func TestIngest_Idempotent(t *testing.T) {
	uploader, _, readings := newUploader(0)
	ctx := context.Background()

	first, err := uploader.Ingest(ctx, facilityKey(), facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, first.Kind)

	second, err := uploader.Ingest(ctx, facilityKey(), facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSkipped, second.Kind)
	assert.Equal(t, 0, second.RowsUploaded)
	assert.Len(t, readings.All(), 2)
}

func TestIngest_ResumesStrictlyAfterWatermark(t *testing.T) {
	uploader, ledger, readings := newUploader(0)
	ctx := context.Background()
	key := facilityKey()

	// A prior run got through the first row before being abandoned.
	require.NoError(t, ledger.MarkStatus(ctx, key, model.StatusInProgress, 0))
	require.NoError(t, ledger.UpsertWatermark(ctx, key, ts(t, "2013-05-01 00:05:00")))

	outcome, err := uploader.Ingest(ctx, key, facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 1, outcome.RowsUploaded)

	stored := readings.All()
	require.Len(t, stored, 1)
	assert.Equal(t, ts(t, "2013-05-01 00:10:00"), stored[0].Datetime)
	assert.Equal(t, 130.2, stored[0].Value)
}

func TestIngest_WatermarkAtEndButInProgress_CompletesWithoutRows(t *testing.T) {
	uploader, ledger, readings := newUploader(0)
	ctx := context.Background()
	key := facilityKey()

	// Crash after the last batch was written but before the Completed mark.
	require.NoError(t, ledger.MarkStatus(ctx, key, model.StatusInProgress, 0))
	require.NoError(t, ledger.UpsertWatermark(ctx, key, ts(t, "2013-05-01 00:10:00")))

	outcome, err := uploader.Ingest(ctx, key, facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 0, outcome.RowsUploaded)
	assert.Empty(t, readings.All())

	entry, err := ledger.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, entry.Status)
}

func TestIngest_SinkFailureLeavesInProgressAtDurableWatermark(t *testing.T) {
	// Batch size 1 so the failure lands on the second batch.
	uploader, ledger, readings := newUploader(1)
	ctx := context.Background()
	key := facilityKey()

	sinkErr := exception.New("store", "insert rejected", exception.ErrConnection)
	// First insert succeeds, second fails.
	outcome1, err := uploader.Ingest(ctx, key, facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	require.Equal(t, 2, outcome1.RowsUploaded)

	// Fresh pipeline, fail the very first batch this time.
	uploader, ledger, readings = newUploader(1)
	readings.FailNextInsert(sinkErr)

	outcome, err := uploader.Ingest(ctx, key, facilityTable(), facilitySettings(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConnection))
	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	assert.Equal(t, 0, outcome.RowsUploaded)
	assert.Empty(t, readings.All())

	entry, lerr := ledger.Get(ctx, key)
	require.NoError(t, lerr)
	assert.Equal(t, model.StatusInProgress, entry.Status)
	assert.Nil(t, entry.LastUploadedAt)

	// A retry resumes and finishes the stream.
	retry, err := uploader.Ingest(ctx, key, facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, retry.Kind)
	assert.Equal(t, 2, retry.RowsUploaded)
	assert.Len(t, readings.All(), 2)
}

func TestIngest_UnorderedTableFailsBeforeAnyWrite(t *testing.T) {
	uploader, _, readings := newUploader(0)
	ctx := context.Background()

	table := facilityTable()
	table.Rows = []model.WideRow{
		{TimestampRaw: "05/01  00:10:00", Values: []float64{130.2}},
		{TimestampRaw: "05/01  00:05:00", Values: []float64{120.5}},
	}

	outcome, err := uploader.Ingest(ctx, facilityKey(), table, facilitySettings(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrUnorderedSourceTable))
	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	assert.Empty(t, readings.All())
}

func TestIngest_LedgerInconsistencySurfaced(t *testing.T) {
	uploader, ledger, _ := newUploader(0)
	ctx := context.Background()
	key := facilityKey()

	// Watermark present but status NotStarted: contradictory, must surface.
	require.NoError(t, ledger.UpsertWatermark(ctx, key, ts(t, "2013-05-01 00:05:00")))

	_, err := uploader.Ingest(ctx, key, facilityTable(), facilitySettings(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrLedgerInconsistency))
}

func TestIngest_ZoneTableFiltersToKey(t *testing.T) {
	uploader, _, readings := newUploader(0)
	ctx := context.Background()

	table := model.WideTable{
		BuildingID: 7,
		Category:   "Zone_Air_Temperature",
		Columns:    []string{"ZoneA:Temp", "ZoneB:Temp"},
		Rows: []model.WideRow{
			{TimestampRaw: "05/01  00:05:00", Values: []float64{21.1, 22.2}},
			{TimestampRaw: "05/01  00:10:00", Values: []float64{21.3, 22.4}},
		},
	}
	key := model.IngestionKey{BuildingID: 7, VariableName: "Zone Air Temperature", SubvariableName: "ZoneA"}

	outcome, err := uploader.Ingest(ctx, key, table, facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.RowsUploaded)

	stored := readings.All()
	require.Len(t, stored, 2)
	for _, r := range stored {
		assert.Equal(t, "ZoneA", r.ZoneName)
	}
}

func TestIngest_BatchedCommitAdvancesWatermarkPerBatch(t *testing.T) {
	uploader, ledger, _ := newUploader(1)
	ctx := context.Background()
	key := facilityKey()

	outcome, err := uploader.Ingest(ctx, key, facilityTable(), facilitySettings(t))
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.RowsUploaded)

	entry, err := ledger.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, entry.LastUploadedAt)
	assert.Equal(t, ts(t, "2013-05-01 00:10:00"), *entry.LastUploadedAt)
	assert.Greater(t, entry.LastDurationSeconds, 0.0)
}
