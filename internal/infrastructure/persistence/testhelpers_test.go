package persistence

import (
	"testing"
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupSyncTestDB opens an in-memory SQLite database with the sync tables.
// The pool is pinned to one connection so every goroutine sees the same database.
func setupSyncTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func stockRecord(id, sku string) integration.StockRecord {
	return integration.StockRecord{
		ID:           id,
		SKU:          sku,
		LocationCode: "MAIN",
		Quantity:     decimal.NewFromInt(3),
		OccurredAt:   testNow,
	}
}

func enqueueFailed(t *testing.T, repo *GormFailedRecordRepository, id string, cause *integration.SyncError) *integration.FailedRecord {
	t.Helper()
	rec, err := integration.NewFailedRecord(nil, stockRecord(id, "SKU-"+id), cause, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(t.Context(), rec))
	return rec
}
