package dto

import (
	"net/http"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/domain/shared"
)

// API error codes, ERR_<CATEGORY>[_<DETAIL>]
const (
	ErrCodeInternal    = "ERR_INTERNAL"
	ErrCodeUnavailable = "ERR_UNAVAILABLE"

	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"

	ErrCodeNotFound          = "ERR_NOT_FOUND"
	ErrCodeJobAlreadyRunning = "ERR_JOB_ALREADY_RUNNING"
	ErrCodeInvalidState      = "ERR_INVALID_STATE"
	ErrCodeMappingNotFound   = "ERR_MAPPING_NOT_FOUND"

	// source or target system failures
	ErrCodeUpstream            = "ERR_UPSTREAM"
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
)

// ErrorCodeHTTPStatus is the response status of every API error code
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeValidationRange: http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeJobAlreadyRunning: http.StatusConflict,
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeMappingNotFound:   http.StatusUnprocessableEntity,

	ErrCodeUpstream:            http.StatusBadGateway,
	ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
}

// domainCodes translates domain error codes into API codes
var domainCodes = map[string]string{
	shared.CodeNotFound:                    ErrCodeNotFound,
	shared.CodeInvalidInput:                ErrCodeInvalidInput,
	shared.CodeJobAlreadyRunning:           ErrCodeJobAlreadyRunning,
	integration.CodeInvalidStateTransition: ErrCodeInvalidState,
	integration.CodeValidation:             ErrCodeValidation,
	integration.CodeMappingNotFound:        ErrCodeMappingNotFound,
	integration.CodeTransientExternal:      ErrCodeUpstream,
	integration.CodeFatalConnectivity:      ErrCodeUpstreamUnavailable,
}

// GetHTTPStatus returns the status for code, 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NormalizeErrorCode converts a domain error code to its API code. API codes
// and unknown codes are returned unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainCodes[code]; ok {
		return apiCode
	}
	return code
}
