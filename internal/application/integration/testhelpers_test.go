package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/domain/shared"
	"github.com/erp/syncengine/internal/infrastructure/cache"
	"github.com/erp/syncengine/internal/infrastructure/persistence"
	"github.com/erp/syncengine/internal/infrastructure/persistence/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// MockSourceClient is a mock implementation of integration.SourceClient
type MockSourceClient struct {
	mock.Mock
}

func (m *MockSourceClient) FetchStockChanges(ctx context.Context, from, to time.Time) ([]integration.StockRecord, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.StockRecord), args.Error(1)
}

func (m *MockSourceClient) FetchInvoices(ctx context.Context, from, to time.Time) ([]integration.InvoiceRecord, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.InvoiceRecord), args.Error(1)
}

func (m *MockSourceClient) FetchCustomers(ctx context.Context, from, to time.Time) ([]integration.CustomerRecord, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.CustomerRecord), args.Error(1)
}

// MockTargetClient is a mock implementation of integration.TargetClient
type MockTargetClient struct {
	mock.Mock
}

func (m *MockTargetClient) PushStockMovements(ctx context.Context, records []integration.MappedRecord) (*integration.PushResult, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.PushResult), args.Error(1)
}

func (m *MockTargetClient) PushInvoices(ctx context.Context, records []integration.MappedRecord) (*integration.PushResult, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.PushResult), args.Error(1)
}

func (m *MockTargetClient) PushCustomers(ctx context.Context, records []integration.MappedRecord) (*integration.PushResult, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.PushResult), args.Error(1)
}

// MockBroadcaster is a mock implementation of integration.MappingInvalidationBroadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Publish(ctx context.Context, key integration.MappingKey) error {
	return m.Called(ctx, key).Error(0)
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// testEngine wires the application services over an in-memory SQLite store
type testEngine struct {
	db          *gorm.DB
	runs        *persistence.GormSyncRunRepository
	failed      *persistence.GormFailedRecordRepository
	mappings    *persistence.GormMappingRepository
	adjustments *persistence.GormPendingAdjustmentRepository

	source    *MockSourceClient
	target    *MockTargetClient
	publisher *recordingPublisher

	resolver       *MappingResolver
	mappingService *MappingService
	pipeline       *RecordPipeline
	orchestrator   *SyncOrchestrator
	retry          *RetryEngine
	failedService  *FailedRecordService
	adjustService  *PendingAdjustmentService
	runService     *SyncRunService
}

type engineOption func(*PipelineConfig, *RetryConfig)

func withBatchSize(n int) engineOption {
	return func(p *PipelineConfig, _ *RetryConfig) { p.PushBatchSize = n }
}

func withThreshold(v int64) engineOption {
	return func(p *PipelineConfig, _ *RetryConfig) {
		d := decimal.NewFromInt(v)
		p.ApprovalThreshold = &d
	}
}

func withMaxRetries(n int) engineOption {
	return func(_ *PipelineConfig, r *RetryConfig) { r.MaxRetries = n }
}

func setupTestDB(t *testing.T) *gorm.DB {
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

func newTestEngine(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()
	var (
		pipelineCfg PipelineConfig
		retryCfg    RetryConfig
	)
	for _, opt := range opts {
		opt(&pipelineCfg, &retryCfg)
	}

	db := setupTestDB(t)
	e := &testEngine{
		db:          db,
		runs:        persistence.NewGormSyncRunRepository(db),
		failed:      persistence.NewGormFailedRecordRepository(db),
		mappings:    persistence.NewGormMappingRepository(db),
		adjustments: persistence.NewGormPendingAdjustmentRepository(db),
		source:      new(MockSourceClient),
		target:      new(MockTargetClient),
		publisher:   &recordingPublisher{},
	}
	logger := zap.NewNop()

	mappingCache := cache.NewInMemoryMappingCache(cache.WithTTL(time.Minute))
	t.Cleanup(func() { _ = mappingCache.Close() })

	e.resolver = NewMappingResolver(e.mappings, mappingCache, logger)
	e.mappingService = NewMappingService(e.mappings, e.resolver, nil, logger)

	e.adjustService = NewPendingAdjustmentService(e.adjustments, logger)
	e.adjustService.SetEventPublisher(e.publisher)

	e.pipeline = NewRecordPipeline(e.resolver, e.target, e.adjustService, pipelineCfg, logger)
	e.orchestrator = NewSyncOrchestrator(e.runs, e.failed, e.source, e.pipeline, nil, OrchestratorConfig{}, logger)
	e.retry = NewRetryEngine(e.failed, e.pipeline, nil, retryCfg, logger)
	e.retry.now = func() time.Time { return testNow }
	e.failedService = NewFailedRecordService(e.failed, e.retry, logger)
	e.runService = NewSyncRunService(e.runs, e.failed, e.adjustments)
	return e
}

func (e *testEngine) addMapping(t *testing.T, mappingType integration.MappingType, source, target string) {
	t.Helper()
	_, err := e.mappingService.SaveMapping(context.Background(), SaveMappingRequest{
		MappingType: string(mappingType),
		SourceValue: source,
		TargetValue: target,
	})
	require.NoError(t, err)
}

// enqueue stores a failed stock record that is due now
func (e *testEngine) enqueue(t *testing.T, record integration.SyncRecord, cause *integration.SyncError) *integration.FailedRecord {
	t.Helper()
	failed, err := integration.NewFailedRecord(nil, record, cause, testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.failed.Enqueue(context.Background(), failed))
	return failed
}

func stock(id, sku string, qty int64) integration.StockRecord {
	return integration.StockRecord{
		ID:         id,
		SKU:        sku,
		Quantity:   decimal.NewFromInt(qty),
		OccurredAt: testNow,
	}
}

func transientCause() *integration.SyncError {
	return integration.NewTransientError("target timed out", nil)
}

// keysOf matches a push whose records carry exactly these keys in order
func keysOf(keys ...string) any {
	return mock.MatchedBy(func(records []integration.MappedRecord) bool {
		if len(records) != len(keys) {
			return false
		}
		for i, r := range records {
			if r.Record.RecordKey() != keys[i] {
				return false
			}
		}
		return true
	})
}

// pushOK reports every record of a push as applied
func pushOK(n int) *integration.PushResult {
	return integration.NewPushResult(n, nil)
}

// assertRunInvariants checks the counters and status of a closed run
func assertRunInvariants(t *testing.T, run *integration.SyncRun) {
	t.Helper()
	require.NotNil(t, run)
	require.True(t, run.IsClosed(), "run must be closed")
	require.NotNil(t, run.EndTime)
	require.Equal(t, run.Processed, run.Succeeded+run.Failed)
	if run.Status == integration.SyncRunStatusSuccess {
		require.Zero(t, run.Failed)
		require.Empty(t, run.ErrorMessage)
	} else {
		require.NotEmpty(t, run.ErrorMessage)
	}
}
