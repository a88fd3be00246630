package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/infrastructure/config"
	"github.com/erp/syncengine/internal/infrastructure/persistence/models"
	"github.com/erp/syncengine/internal/interfaces/http/dto"
)

func setupDB(t *testing.T) *gorm.DB {
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

// emptySource answers every pull with an empty page
func emptySource(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"has_more":false}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(sourceURL, targetURL string) *config.Config {
	return &config.Config{
		App:       config.AppConfig{Name: "sync-engine", Port: "0"},
		Telemetry: config.TelemetryConfig{ServiceName: "sync-engine"},
		Source:    config.ExternalAPIConfig{BaseURL: sourceURL, Timeout: time.Second, MaxAttempts: 1, PageSize: 50},
		Target:    config.ExternalAPIConfig{BaseURL: targetURL, Timeout: time.Second, MaxAttempts: 1},
		Sync:      config.SyncConfig{PushBatchSize: 10, InitialLookback: time.Hour},
		Retry:     config.RetryConfig{BatchSize: 10, BaseDelay: time.Minute, MaxDelay: time.Hour},
		Scheduler: config.SchedulerConfig{SyncScope: "ALL", LockPrefix: "test:job:", LockTTL: time.Minute},
		Reconcile: config.ReconcileConfig{Enabled: true, StaleAfter: time.Hour},
		Events:    config.EventsConfig{RelayChannel: "test:events"},
		Cache:     config.CacheConfig{InvalidationChannel: "test:mappings"},
	}
}

func startApp(t *testing.T, cfg *config.Config, rdb *redis.Client) (*App, http.Handler) {
	t.Helper()
	app, err := Build(t.Context(), cfg, Deps{Logger: zap.NewNop(), DB: setupDB(t), Redis: rdb})
	require.NoError(t, err)
	require.NoError(t, app.Start(t.Context()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	engine, err := app.HTTPHandler()
	require.NoError(t, err)
	return app, engine
}

func call(t *testing.T, h http.Handler, method, path string, body any) (int, dto.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp dto.Response
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func decode(t *testing.T, resp dto.Response, out any) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestBuild_RequiresDatabase(t *testing.T) {
	_, err := Build(t.Context(), testConfig("http://source", "http://target"), Deps{})
	assert.Error(t, err)
}

func TestBuild_RejectsBadThreshold(t *testing.T) {
	cfg := testConfig("http://source", "http://target")
	cfg.Sync.ApprovalThreshold = "lots"
	_, err := Build(t.Context(), cfg, Deps{DB: setupDB(t)})
	assert.ErrorContains(t, err, "approval_threshold")
}

func TestBuild_RejectsBadScope(t *testing.T) {
	cfg := testConfig("http://source", "http://target")
	cfg.Scheduler.SyncScope = "ORDERS"
	_, err := Build(t.Context(), cfg, Deps{DB: setupDB(t)})
	assert.ErrorContains(t, err, "sync_scope")
}

func TestApp_HTTPWithoutRedis(t *testing.T) {
	source := emptySource(t)
	_, h := startApp(t, testConfig(source.URL, source.URL), nil)

	code, _ := call(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp := call(t, h, http.MethodPost, "/api/v1/sync/run", map[string]string{"type": "ALL"})
	require.Equal(t, http.StatusOK, code)
	var runs []appintegration.SyncRunResponse
	decode(t, resp, &runs)
	require.Len(t, runs, 3)
	for _, run := range runs {
		assert.Equal(t, "SUCCESS", run.Status)
		assert.Equal(t, "api", run.TriggeredBy)
		assert.Zero(t, run.Processed)
	}

	code, resp = call(t, h, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	var status appintegration.SyncStatusResponse
	decode(t, resp, &status)
	assert.Len(t, status.Types, 3)
	assert.Zero(t, status.PendingApproval)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_AdjustmentsAndMappingsWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	source := emptySource(t)
	app, h := startApp(t, testConfig(source.URL, source.URL), rdb)
	assert.Len(t, app.HealthChecks(), 2)

	code, _ := call(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, h, http.MethodPut, "/api/v1/mappings",
		map[string]string{"mapping_type": "SKU_ACCOUNT", "source_value": "SKU-1", "target_value": "1400"})
	require.Equal(t, http.StatusOK, code)

	code, resp := call(t, h, http.MethodGet, "/api/v1/mappings?type=SKU_ACCOUNT", nil)
	require.Equal(t, http.StatusOK, code)
	var mappings []appintegration.MappingResponse
	decode(t, resp, &mappings)
	require.Len(t, mappings, 1)
	assert.Equal(t, "1400", mappings[0].TargetValue)

	code, resp = call(t, h, http.MethodPost, "/api/v1/pending-adjustments",
		map[string]string{"sku": "SKU-1", "quantity": "-12", "reason": "shrinkage"})
	require.Equal(t, http.StatusCreated, code)
	var created appintegration.PendingAdjustmentResponse
	decode(t, resp, &created)
	assert.Equal(t, "PENDING", created.Status)

	code, resp = call(t, h, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	var status appintegration.SyncStatusResponse
	decode(t, resp, &status)
	assert.EqualValues(t, 1, status.PendingApproval)

	path := "/api/v1/pending-adjustments/" + strconv.FormatInt(created.ID, 10)
	code, resp = call(t, h, http.MethodPost, path+"/approve", map[string]string{"approved_by": "lead"})
	require.Equal(t, http.StatusOK, code)
	var approved appintegration.PendingAdjustmentResponse
	decode(t, resp, &approved)
	assert.Equal(t, "APPROVED", approved.Status)

	code, resp = call(t, h, http.MethodPost, path+"/approve", map[string]string{"approved_by": "lead"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
}

func TestApp_HealthReportsClosedRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	source := emptySource(t)
	_, h := startApp(t, testConfig(source.URL, source.URL), rdb)

	mr.Close()
	code, _ := call(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
