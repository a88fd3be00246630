package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/interfaces/http/dto"
	"github.com/erp/syncengine/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newTestEngine(registrars ...interface{ RegisterRoutes(*gin.RouterGroup) }) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1")
	for _, r := range registrars {
		r.RegisterRoutes(api)
	}
	return engine
}

// doRequest performs a request and decodes the response envelope
func doRequest(t *testing.T, engine *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// decodeData re-decodes resp.Data into out
func decodeData(t *testing.T, resp dto.Response, out any) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

type MockSyncJobs struct {
	mock.Mock
}

func (m *MockSyncJobs) RunSync(ctx context.Context, scope integration.SyncScope, triggeredBy string) ([]*integration.SyncRun, error) {
	args := m.Called(ctx, scope, triggeredBy)
	runs, _ := args.Get(0).([]*integration.SyncRun)
	return runs, args.Error(1)
}

func (m *MockSyncJobs) RunRetryPass(ctx context.Context, triggeredBy string) (*appintegration.RetryPassResult, error) {
	args := m.Called(ctx, triggeredBy)
	result, _ := args.Get(0).(*appintegration.RetryPassResult)
	return result, args.Error(1)
}

type MockSyncRuns struct {
	mock.Mock
}

func (m *MockSyncRuns) ListSyncRuns(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, error) {
	args := m.Called(ctx, filter)
	runs, _ := args.Get(0).([]integration.SyncRun)
	return runs, args.Error(1)
}

func (m *MockSyncRuns) GetSyncRun(ctx context.Context, id int64) (*integration.SyncRun, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*integration.SyncRun)
	return run, args.Error(1)
}

func (m *MockSyncRuns) GetSyncStatus(ctx context.Context) (*appintegration.SyncStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*appintegration.SyncStatus)
	return status, args.Error(1)
}

type MockFailedRecords struct {
	mock.Mock
}

func (m *MockFailedRecords) ListFailedRecords(ctx context.Context, filter integration.FailedRecordFilter) ([]integration.FailedRecord, int64, error) {
	args := m.Called(ctx, filter)
	records, _ := args.Get(0).([]integration.FailedRecord)
	return records, args.Get(1).(int64), args.Error(2)
}

func (m *MockFailedRecords) GetFailedRecord(ctx context.Context, id int64) (*integration.FailedRecord, error) {
	args := m.Called(ctx, id)
	record, _ := args.Get(0).(*integration.FailedRecord)
	return record, args.Error(1)
}

func (m *MockFailedRecords) ResolveFailedRecord(ctx context.Context, id int64, req appintegration.ResolveFailedRecordRequest) (*integration.FailedRecord, error) {
	args := m.Called(ctx, id, req)
	record, _ := args.Get(0).(*integration.FailedRecord)
	return record, args.Error(1)
}

func (m *MockFailedRecords) IgnoreFailedRecord(ctx context.Context, id int64, req appintegration.IgnoreFailedRecordRequest) (*integration.FailedRecord, error) {
	args := m.Called(ctx, id, req)
	record, _ := args.Get(0).(*integration.FailedRecord)
	return record, args.Error(1)
}

type MockAdjustments struct {
	mock.Mock
}

func (m *MockAdjustments) CreatePendingAdjustment(ctx context.Context, req appintegration.CreatePendingAdjustmentRequest) (*integration.PendingAdjustment, error) {
	args := m.Called(ctx, req)
	adj, _ := args.Get(0).(*integration.PendingAdjustment)
	return adj, args.Error(1)
}

func (m *MockAdjustments) GetPendingAdjustment(ctx context.Context, id int64) (*integration.PendingAdjustment, error) {
	args := m.Called(ctx, id)
	adj, _ := args.Get(0).(*integration.PendingAdjustment)
	return adj, args.Error(1)
}

func (m *MockAdjustments) ListPendingAdjustments(ctx context.Context, filter integration.PendingAdjustmentFilter) ([]integration.PendingAdjustment, int64, error) {
	args := m.Called(ctx, filter)
	adjs, _ := args.Get(0).([]integration.PendingAdjustment)
	return adjs, args.Get(1).(int64), args.Error(2)
}

func (m *MockAdjustments) ApprovePendingAdjustment(ctx context.Context, id int64, by string) (*integration.PendingAdjustment, error) {
	args := m.Called(ctx, id, by)
	adj, _ := args.Get(0).(*integration.PendingAdjustment)
	return adj, args.Error(1)
}

func (m *MockAdjustments) RejectPendingAdjustment(ctx context.Context, id int64, by, reason string) (*integration.PendingAdjustment, error) {
	args := m.Called(ctx, id, by, reason)
	adj, _ := args.Get(0).(*integration.PendingAdjustment)
	return adj, args.Error(1)
}

type MockMappings struct {
	mock.Mock
}

func (m *MockMappings) ListMappings(ctx context.Context, filter integration.MappingFilter) ([]integration.Mapping, int64, error) {
	args := m.Called(ctx, filter)
	mappings, _ := args.Get(0).([]integration.Mapping)
	return mappings, args.Get(1).(int64), args.Error(2)
}

func (m *MockMappings) SaveMapping(ctx context.Context, req appintegration.SaveMappingRequest) (*integration.Mapping, error) {
	args := m.Called(ctx, req)
	mapping, _ := args.Get(0).(*integration.Mapping)
	return mapping, args.Error(1)
}

func (m *MockMappings) DeactivateMapping(ctx context.Context, mappingType integration.MappingType, sourceValue string) (*integration.Mapping, error) {
	args := m.Called(ctx, mappingType, sourceValue)
	mapping, _ := args.Get(0).(*integration.Mapping)
	return mapping, args.Error(1)
}
