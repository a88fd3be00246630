//go:build integration

package persistence

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a disposable PostgreSQL container and applies the embedded migrations
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("syncengine_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migration.Open(dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestPostgres_ConcurrentClaimsAreDisjoint(t *testing.T) {
	db := setupPostgres(t)
	repo := NewGormFailedRecordRepository(db)
	ctx := context.Background()

	const total = 200
	for i := 0; i < total; i++ {
		rec, err := integration.NewFailedRecord(nil, stockRecord("MV-"+strconv.Itoa(i), "SKU"),
			integration.NewTransientError("timeout", nil), testNow)
		require.NoError(t, err)
		require.NoError(t, repo.Enqueue(ctx, rec))
	}

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := repo.ClaimBatch(ctx, 7, testNow)
				if !assert.NoError(t, err) || len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, rec := range claimed {
					seen[rec.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "record %d claimed more than once", id)
	}
}

func TestPostgres_ResolvedRequiresResolvedAt(t *testing.T) {
	db := setupPostgres(t)

	err := db.Exec(`INSERT INTO failed_records (record_type, record_id, original_payload, status)
		VALUES ('STOCK', 'X', '{}', 'RESOLVED')`).Error
	assert.Error(t, err, "check constraint must reject RESOLVED without resolved_at")
}

func TestPostgres_MappingUpsert(t *testing.T) {
	repo := NewGormMappingRepository(setupPostgres(t))
	ctx := context.Background()

	first, err := integration.NewMapping(integration.MappingTypeCustomer, "c-1", "ACME", "")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first))

	second, err := integration.NewMapping(integration.MappingTypeCustomer, "C-1", "ACME-2", "")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	found, err := repo.FindActiveBySource(ctx, first.Key())
	require.NoError(t, err)
	assert.Equal(t, "ACME-2", found.TargetValue)
}
