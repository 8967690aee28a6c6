package gormrepo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
)

// openTestDB opens a throwaway sqlite database with the sink schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "epingest_test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerRecord{}, &model.CanonicalReading{}, &model.Building{}))
	return db
}

func ledgerKey() model.IngestionKey {
	return model.IngestionKey{BuildingID: 3, VariableName: "Zone Air Temperature", SubvariableName: "ZONE A"}
}

func TestLedger_GetMissing(t *testing.T) {
	repo := NewLedgerRepository(openTestDB(t))
	_, err := repo.Get(context.Background(), ledgerKey())
	assert.ErrorIs(t, err, repository.ErrLedgerEntryNotFound)
}

func TestLedger_UpsertThenGet(t *testing.T) {
	repo := NewLedgerRepository(openTestDB(t))
	ctx := context.Background()
	key := ledgerKey()
	ts := time.Date(2013, 5, 1, 0, 5, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertWatermark(ctx, key, ts))

	entry, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, entry.Key)
	assert.Equal(t, model.StatusNotStarted, entry.Status)
	require.NotNil(t, entry.LastUploadedAt)
	assert.True(t, entry.LastUploadedAt.Equal(ts))
}

func TestLedger_WatermarkNeverRegresses(t *testing.T) {
	repo := NewLedgerRepository(openTestDB(t))
	ctx := context.Background()
	key := ledgerKey()

	early := time.Date(2013, 5, 1, 0, 5, 0, 0, time.UTC)
	late := time.Date(2013, 5, 1, 0, 10, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertWatermark(ctx, key, late))
	require.NoError(t, repo.UpsertWatermark(ctx, key, early))

	entry, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, entry.LastUploadedAt)
	assert.True(t, entry.LastUploadedAt.Equal(late))
}

func TestLedger_MarkStatusAndComplete(t *testing.T) {
	repo := NewLedgerRepository(openTestDB(t))
	ctx := context.Background()
	key := ledgerKey()
	end := time.Date(2013, 12, 31, 23, 55, 0, 0, time.UTC)

	require.NoError(t, repo.MarkStatus(ctx, key, model.StatusInProgress, 0))
	require.NoError(t, repo.UpsertWatermark(ctx, key, end))

	complete, err := repo.IsAlreadyComplete(ctx, key, end)
	require.NoError(t, err)
	assert.False(t, complete, "InProgress at end watermark is not complete")

	require.NoError(t, repo.MarkStatus(ctx, key, model.StatusCompleted, 42*time.Second))

	entry, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, entry.Status)
	assert.Equal(t, 42.0, entry.LastDurationSeconds)

	complete, err = repo.IsAlreadyComplete(ctx, key, end)
	require.NoError(t, err)
	assert.True(t, complete)

	complete, err = repo.IsAlreadyComplete(ctx, key, end.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, complete, "a longer simulation horizon reopens the key")
}

func TestLedger_KeysAreIndependent(t *testing.T) {
	repo := NewLedgerRepository(openTestDB(t))
	ctx := context.Background()
	keyA := ledgerKey()
	keyB := keyA
	keyB.SubvariableName = "ZONE B"
	ts := time.Date(2013, 5, 1, 0, 5, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertWatermark(ctx, keyA, ts))

	_, err := repo.Get(ctx, keyB)
	assert.ErrorIs(t, err, repository.ErrLedgerEntryNotFound)
}
