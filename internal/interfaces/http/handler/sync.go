package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/logger"
	"github.com/erp/syncengine/internal/infrastructure/scheduler"
	"github.com/erp/syncengine/internal/interfaces/http/dto"
)

const (
	maxRunsLimit      = 200
	defaultJobTimeout = time.Hour
)

// SyncJobRunner starts sync runs and retry passes
type SyncJobRunner interface {
	RunSync(ctx context.Context, scope integration.SyncScope, triggeredBy string) ([]*integration.SyncRun, error)
	RunRetryPass(ctx context.Context, triggeredBy string) (*appintegration.RetryPassResult, error)
}

// SyncRunReader reads the integration log
type SyncRunReader interface {
	ListSyncRuns(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, error)
	GetSyncRun(ctx context.Context, id int64) (*integration.SyncRun, error)
	GetSyncStatus(ctx context.Context) (*appintegration.SyncStatus, error)
}

// TriggerStatusProvider reports the scheduled jobs
type TriggerStatusProvider interface {
	Status() []scheduler.TriggerStatus
}

// SyncHandler handles manual sync triggers and the integration log
type SyncHandler struct {
	BaseHandler
	jobs     SyncJobRunner
	runs     SyncRunReader
	triggers TriggerStatusProvider
	timeout  time.Duration
}

// SyncHandlerOption configures a SyncHandler
type SyncHandlerOption func(*SyncHandler)

// WithJobTimeout bounds manually triggered jobs
func WithJobTimeout(d time.Duration) SyncHandlerOption {
	return func(h *SyncHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewSyncHandler creates a new SyncHandler. triggers may be nil when the
// scheduler is disabled.
func NewSyncHandler(jobs SyncJobRunner, runs SyncRunReader, triggers TriggerStatusProvider, opts ...SyncHandlerOption) *SyncHandler {
	h := &SyncHandler{jobs: jobs, runs: runs, triggers: triggers, timeout: defaultJobTimeout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// jobContext detaches a job from the request. A client disconnect leaves the
// job running until it finishes or the job timeout expires.
func (h *SyncHandler) jobContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
}

// SyncStatusResponse is the body of GET /sync/status
type SyncStatusResponse struct {
	appintegration.SyncStatusResponse
	Triggers []scheduler.TriggerStatus `json:"triggers"`
}

// RunSync handles POST /sync/run with {"type": "STOCK"} or {"type": "ALL"}.
// It runs synchronously and returns the closed runs. A run that aborted is
// still returned with status FAILED and its error message.
func (h *SyncHandler) RunSync(c *gin.Context) {
	var req appintegration.RunSyncRequest
	if !h.bindJSON(c, &req) {
		return
	}
	scope, err := integration.ParseSyncScope(req.Type)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	ctx, cancel := h.jobContext(c)
	defer cancel()
	runs, err := h.jobs.RunSync(ctx, scope, TriggeredByAPI)
	if err != nil && len(runs) == 0 {
		h.HandleError(c, err)
		return
	}
	if err != nil {
		logger.GetGinLogger(c).Warn("Sync finished with an aborted run", zap.Error(err))
	}

	responses := make([]appintegration.SyncRunResponse, len(runs))
	for i, run := range runs {
		responses[i] = appintegration.ToSyncRunResponse(run)
	}
	h.Success(c, responses)
}

// RunRetryPass handles POST /sync/retry
func (h *SyncHandler) RunRetryPass(c *gin.Context) {
	ctx, cancel := h.jobContext(c)
	defer cancel()
	result, err := h.jobs.RunRetryPass(ctx, TriggeredByAPI)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListRuns handles GET /sync/runs?type=STOCK&status=FAILED&limit=50, newest first
func (h *SyncHandler) ListRuns(c *gin.Context) {
	filter := integration.SyncRunFilter{Limit: 50}

	if v := c.Query("type"); v != "" {
		t, err := integration.ParseSyncType(v)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.SyncType = &t
	}
	if v := c.Query("status"); v != "" {
		status := integration.SyncRunStatus(strings.ToUpper(v))
		if !status.IsValid() {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "unknown run status "+strconv.Quote(v))
			return
		}
		filter.Status = &status
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxRunsLimit {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationRange, "limit must be between 1 and "+strconv.Itoa(maxRunsLimit))
			return
		}
		filter.Limit = limit
	}

	runs, err := h.runs.ListSyncRuns(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToSyncRunResponses(runs))
}

// GetRun handles GET /sync/runs/:id
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	run, err := h.runs.GetSyncRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToSyncRunResponse(run))
}

// Status handles GET /sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.runs.GetSyncStatus(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := SyncStatusResponse{
		SyncStatusResponse: appintegration.ToSyncStatusResponse(status),
		Triggers:           []scheduler.TriggerStatus{},
	}
	if h.triggers != nil {
		resp.Triggers = h.triggers.Status()
	}
	h.Success(c, resp)
}

// RegisterRoutes implements router.RouteRegistrar
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/sync")
	g.POST("/run", h.RunSync)
	g.POST("/retry", h.RunRetryPass)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.GET("/status", h.Status)
}
