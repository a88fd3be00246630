package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appintegration "github.com/erp/syncengine/internal/application/integration"
	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/interfaces/http/dto"
)

func TestMappingHandler_List(t *testing.T) {
	service := new(MockMappings)
	engine := newTestEngine(NewMappingHandler(service))

	m, err := integration.NewMapping(integration.MappingTypeCustomer, "C-1", "ACC-100", "Acme")
	require.NoError(t, err)
	customer := integration.MappingTypeCustomer
	active := true
	service.On("ListMappings", mock.Anything, integration.MappingFilter{
		MappingType: &customer, IsActive: &active, Search: "acme", Page: 1, PageSize: 20,
	}).Return([]integration.Mapping{*m}, int64(1), nil).Once()

	w, resp := doRequest(t, engine, http.MethodGet, "/api/v1/mappings?type=customer&active=true&search=acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []appintegration.MappingResponse
	decodeData(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "ACC-100", list[0].TargetValue)
	assert.True(t, list[0].IsActive)

	w, _ = doRequest(t, engine, http.MethodGet, "/api/v1/mappings?active=sometimes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = doRequest(t, engine, http.MethodGet, "/api/v1/mappings?type=COLOR", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	service.AssertExpectations(t)
}

func TestMappingHandler_Save(t *testing.T) {
	service := new(MockMappings)
	engine := newTestEngine(NewMappingHandler(service))

	req := appintegration.SaveMappingRequest{MappingType: "UOM", SourceValue: "pcs", TargetValue: "EA"}
	m, err := integration.NewMapping(integration.MappingTypeUOM, "pcs", "EA", "")
	require.NoError(t, err)
	service.On("SaveMapping", mock.Anything, req).Return(m, nil).Once()

	w, resp := doRequest(t, engine, http.MethodPut, "/api/v1/mappings", req)
	require.Equal(t, http.StatusOK, w.Code)
	var saved appintegration.MappingResponse
	decodeData(t, resp, &saved)
	assert.Equal(t, "UOM", saved.MappingType)

	w, resp = doRequest(t, engine, http.MethodPut, "/api/v1/mappings", map[string]string{"mapping_type": "UOM", "source_value": "pcs"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "target_value", resp.Error.Details[0].Field)
	service.AssertExpectations(t)
}

func TestMappingHandler_Deactivate(t *testing.T) {
	service := new(MockMappings)
	engine := newTestEngine(NewMappingHandler(service))

	m, err := integration.NewMapping(integration.MappingTypeSKUAccount, "SKU-1", "1400", "")
	require.NoError(t, err)
	m.Deactivate()
	service.On("DeactivateMapping", mock.Anything, integration.MappingTypeSKUAccount, "SKU-1").Return(m, nil).Once()
	service.On("DeactivateMapping", mock.Anything, integration.MappingTypeSKUAccount, "SKU-2").Return(nil, integration.ErrMappingNotFound).Once()

	w, resp := doRequest(t, engine, http.MethodDelete, "/api/v1/mappings/sku_account/SKU-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out appintegration.MappingResponse
	decodeData(t, resp, &out)
	assert.False(t, out.IsActive)

	w, resp = doRequest(t, engine, http.MethodDelete, "/api/v1/mappings/SKU_ACCOUNT/SKU-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	service.AssertExpectations(t)
}
