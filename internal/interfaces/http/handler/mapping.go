package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/domain/integration"
)

// MappingManager maintains the cross-system identifier mappings
type MappingManager interface {
	ListMappings(ctx context.Context, filter integration.MappingFilter) ([]integration.Mapping, int64, error)
	SaveMapping(ctx context.Context, req appintegration.SaveMappingRequest) (*integration.Mapping, error)
	DeactivateMapping(ctx context.Context, mappingType integration.MappingType, sourceValue string) (*integration.Mapping, error)
}

// MappingHandler handles the mapping table API
type MappingHandler struct {
	BaseHandler
	service MappingManager
}

// NewMappingHandler creates a new MappingHandler
func NewMappingHandler(service MappingManager) *MappingHandler {
	return &MappingHandler{service: service}
}

// List handles GET /mappings?type=CUSTOMER&active=true&search=ACME
func (h *MappingHandler) List(c *gin.Context) {
	page, ok := h.listRequest(c)
	if !ok {
		return
	}
	filter := integration.MappingFilter{
		Search:   c.Query("search"),
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	if v := c.Query("type"); v != "" {
		t, err := integration.ParseMappingType(v)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.MappingType = &t
	}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.BadRequest(c, "active must be true or false")
			return
		}
		filter.IsActive = &active
	}

	mappings, total, err := h.service.ListMappings(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, appintegration.ToMappingResponses(mappings), total, filter.Page, filter.PageSize)
}

// Save handles PUT /mappings, creating or updating (mapping_type, source_value)
func (h *MappingHandler) Save(c *gin.Context) {
	var req appintegration.SaveMappingRequest
	if !h.bindJSON(c, &req) {
		return
	}
	mapping, err := h.service.SaveMapping(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToMappingResponse(mapping))
}

// Deactivate handles DELETE /mappings/:type/:source
func (h *MappingHandler) Deactivate(c *gin.Context) {
	mappingType, err := integration.ParseMappingType(c.Param("type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	mapping, err := h.service.DeactivateMapping(c.Request.Context(), mappingType, c.Param("source"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToMappingResponse(mapping))
}

// RegisterRoutes implements router.RouteRegistrar
func (h *MappingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/mappings")
	g.GET("", h.List)
	g.PUT("", h.Save)
	g.DELETE("/:type/:source", h.Deactivate)
}
