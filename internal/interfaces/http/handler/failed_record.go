package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/interfaces/http/dto"
)

// FailedRecordManager is the failed record queue as seen by operators
type FailedRecordManager interface {
	ListFailedRecords(ctx context.Context, filter integration.FailedRecordFilter) ([]integration.FailedRecord, int64, error)
	GetFailedRecord(ctx context.Context, id int64) (*integration.FailedRecord, error)
	ResolveFailedRecord(ctx context.Context, id int64, req appintegration.ResolveFailedRecordRequest) (*integration.FailedRecord, error)
	IgnoreFailedRecord(ctx context.Context, id int64, req appintegration.IgnoreFailedRecordRequest) (*integration.FailedRecord, error)
}

// FailedRecordHandler handles the failed record queue API
type FailedRecordHandler struct {
	BaseHandler
	service FailedRecordManager
}

// NewFailedRecordHandler creates a new FailedRecordHandler
func NewFailedRecordHandler(service FailedRecordManager) *FailedRecordHandler {
	return &FailedRecordHandler{service: service}
}

// List handles GET /failed-records?status=FAILED&type=STOCK&run_id=7&page=1&page_size=20
func (h *FailedRecordHandler) List(c *gin.Context) {
	page, ok := h.listRequest(c)
	if !ok {
		return
	}
	filter := integration.FailedRecordFilter{Page: page.Page, PageSize: page.PageSize}

	if v := c.Query("status"); v != "" {
		status := integration.FailedRecordStatus(strings.ToUpper(v))
		if !status.IsValid() {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "unknown failed record status "+strconv.Quote(v))
			return
		}
		filter.Status = &status
	}
	if v := c.Query("type"); v != "" {
		t, err := integration.ParseSyncType(v)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.RecordType = &t
	}
	if v := c.Query("run_id"); v != "" {
		runID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "run_id must be an integer")
			return
		}
		filter.SyncRunID = &runID
	}

	records, total, err := h.service.ListFailedRecords(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, appintegration.ToFailedRecordResponses(records), total, filter.Page, filter.PageSize)
}

// Get handles GET /failed-records/:id
func (h *FailedRecordHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	record, err := h.service.GetFailedRecord(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToFailedRecordResponse(record))
}

// Resolve handles POST /failed-records/:id/resolve. With resend the record
// is replayed first; a rejected replay answers with the new error.
func (h *FailedRecordHandler) Resolve(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req appintegration.ResolveFailedRecordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	record, err := h.service.ResolveFailedRecord(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToFailedRecordResponse(record))
}

// Ignore handles POST /failed-records/:id/ignore
func (h *FailedRecordHandler) Ignore(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req appintegration.IgnoreFailedRecordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	record, err := h.service.IgnoreFailedRecord(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToFailedRecordResponse(record))
}

// RegisterRoutes implements router.RouteRegistrar
func (h *FailedRecordHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/failed-records")
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/resolve", h.Resolve)
	g.POST("/:id/ignore", h.Ignore)
}
