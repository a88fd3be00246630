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

// PendingAdjustmentManager is the approval workflow
type PendingAdjustmentManager interface {
	CreatePendingAdjustment(ctx context.Context, req appintegration.CreatePendingAdjustmentRequest) (*integration.PendingAdjustment, error)
	GetPendingAdjustment(ctx context.Context, id int64) (*integration.PendingAdjustment, error)
	ListPendingAdjustments(ctx context.Context, filter integration.PendingAdjustmentFilter) ([]integration.PendingAdjustment, int64, error)
	ApprovePendingAdjustment(ctx context.Context, id int64, by string) (*integration.PendingAdjustment, error)
	RejectPendingAdjustment(ctx context.Context, id int64, by, reason string) (*integration.PendingAdjustment, error)
}

// PendingAdjustmentHandler handles the stock adjustment approval API
type PendingAdjustmentHandler struct {
	BaseHandler
	service PendingAdjustmentManager
}

// NewPendingAdjustmentHandler creates a new PendingAdjustmentHandler
func NewPendingAdjustmentHandler(service PendingAdjustmentManager) *PendingAdjustmentHandler {
	return &PendingAdjustmentHandler{service: service}
}

// List handles GET /pending-adjustments?status=PENDING&sku=SKU-1
func (h *PendingAdjustmentHandler) List(c *gin.Context) {
	page, ok := h.listRequest(c)
	if !ok {
		return
	}
	filter := integration.PendingAdjustmentFilter{
		SKU:      c.Query("sku"),
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	if v := c.Query("status"); v != "" {
		status := integration.PendingAdjustmentStatus(strings.ToUpper(v))
		if !status.IsValid() {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "unknown adjustment status "+strconv.Quote(v))
			return
		}
		filter.Status = &status
	}

	adjustments, total, err := h.service.ListPendingAdjustments(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, appintegration.ToPendingAdjustmentResponses(adjustments), total, filter.Page, filter.PageSize)
}

// Create handles POST /pending-adjustments
func (h *PendingAdjustmentHandler) Create(c *gin.Context) {
	var req appintegration.CreatePendingAdjustmentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	adj, err := h.service.CreatePendingAdjustment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, appintegration.ToPendingAdjustmentResponse(adj))
}

// Get handles GET /pending-adjustments/:id
func (h *PendingAdjustmentHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	adj, err := h.service.GetPendingAdjustment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToPendingAdjustmentResponse(adj))
}

// Approve handles POST /pending-adjustments/:id/approve
func (h *PendingAdjustmentHandler) Approve(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req appintegration.ApprovePendingAdjustmentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	adj, err := h.service.ApprovePendingAdjustment(c.Request.Context(), id, req.ApprovedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToPendingAdjustmentResponse(adj))
}

// Reject handles POST /pending-adjustments/:id/reject
func (h *PendingAdjustmentHandler) Reject(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req appintegration.RejectPendingAdjustmentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	adj, err := h.service.RejectPendingAdjustment(c.Request.Context(), id, req.RejectedBy, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToPendingAdjustmentResponse(adj))
}

// RegisterRoutes implements router.RouteRegistrar
func (h *PendingAdjustmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/pending-adjustments")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}
