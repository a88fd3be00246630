package integration

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/syncengine/internal/domain/integration"
)

const defaultPageSize = 20

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// RunSyncRequest starts a sync of one type or of ALL types
type RunSyncRequest struct {
	Type string `json:"type" binding:"required"`
}

// ResolveFailedRecordRequest closes a failed record, optionally replaying it first
type ResolveFailedRecordRequest struct {
	Resolution string `json:"resolution"`
	ResolvedBy string `json:"resolved_by" binding:"required"`
	Resend     bool   `json:"resend"`
}

// IgnoreFailedRecordRequest excludes a failed record from retries
type IgnoreFailedRecordRequest struct {
	Reason    string `json:"reason"`
	IgnoredBy string `json:"ignored_by" binding:"required"`
}

// CreatePendingAdjustmentRequest asks for a manual stock adjustment
type CreatePendingAdjustmentRequest struct {
	SKU          string          `json:"sku" binding:"required"`
	ProductID    string          `json:"product_id"`
	LocationCode string          `json:"location_code"`
	Quantity     decimal.Decimal `json:"quantity" binding:"required"`
	Reason       string          `json:"reason"`
	RequestedBy  string          `json:"requested_by"`
}

// ApprovePendingAdjustmentRequest approves an adjustment
type ApprovePendingAdjustmentRequest struct {
	ApprovedBy string `json:"approved_by" binding:"required"`
}

// RejectPendingAdjustmentRequest rejects an adjustment
type RejectPendingAdjustmentRequest struct {
	RejectedBy string `json:"rejected_by" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

// SaveMappingRequest upserts the mapping for (mapping_type, source_value)
type SaveMappingRequest struct {
	MappingType string `json:"mapping_type" binding:"required"`
	SourceValue string `json:"source_value" binding:"required"`
	TargetValue string `json:"target_value" binding:"required"`
	Description string `json:"description"`
}

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// SyncRunResponse represents a sync run in API responses
type SyncRunResponse struct {
	ID           int64      `json:"id"`
	SyncType     string     `json:"sync_type"`
	Status       string     `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Processed    int        `json:"records_processed"`
	Succeeded    int        `json:"records_succeeded"`
	Failed       int        `json:"records_failed"`
	ErrorMessage string     `json:"error_message,omitempty"`
	TriggeredBy  string     `json:"triggered_by"`
	DurationMs   int64      `json:"duration_ms"`
}

// ToSyncRunResponse converts a domain run
func ToSyncRunResponse(run *integration.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:           run.ID,
		SyncType:     string(run.SyncType),
		Status:       string(run.Status),
		StartTime:    run.StartTime,
		EndTime:      run.EndTime,
		Processed:    run.Processed,
		Succeeded:    run.Succeeded,
		Failed:       run.Failed,
		ErrorMessage: run.ErrorMessage,
		TriggeredBy:  run.TriggeredBy,
		DurationMs:   run.Duration().Milliseconds(),
	}
}

// ToSyncRunResponses converts a list of runs
func ToSyncRunResponses(runs []integration.SyncRun) []SyncRunResponse {
	responses := make([]SyncRunResponse, len(runs))
	for i := range runs {
		responses[i] = ToSyncRunResponse(&runs[i])
	}
	return responses
}

// FailedRecordResponse represents a failed record in API responses
type FailedRecordResponse struct {
	ID              int64           `json:"id"`
	SyncRunID       *int64          `json:"sync_run_id,omitempty"`
	RecordType      string          `json:"record_type"`
	RecordID        string          `json:"record_id"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	ErrorMessage    string          `json:"error_message"`
	ErrorCode       string          `json:"error_code"`
	Retryable       bool            `json:"retryable"`
	Status          string          `json:"status"`
	RetryCount      int             `json:"retry_count"`
	LastRetryAt     *time.Time      `json:"last_retry_at,omitempty"`
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"`
	Resolution      string          `json:"resolution,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ToFailedRecordResponse converts a domain failed record
func ToFailedRecordResponse(r *integration.FailedRecord) FailedRecordResponse {
	payload := json.RawMessage(r.OriginalPayload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(r.OriginalPayload)
	}
	return FailedRecordResponse{
		ID:              r.ID,
		SyncRunID:       r.SyncRunID,
		RecordType:      string(r.RecordType),
		RecordID:        r.RecordID,
		OriginalPayload: payload,
		ErrorMessage:    r.ErrorMessage,
		ErrorCode:       r.ErrorCode,
		Retryable:       r.Retryable,
		Status:          string(r.Status),
		RetryCount:      r.RetryCount,
		LastRetryAt:     r.LastRetryAt,
		NextRetryAt:     r.NextRetryAt,
		Resolution:      r.Resolution,
		ResolvedAt:      r.ResolvedAt,
		ResolvedBy:      r.ResolvedBy,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// ToFailedRecordResponses converts a list of failed records
func ToFailedRecordResponses(records []integration.FailedRecord) []FailedRecordResponse {
	responses := make([]FailedRecordResponse, len(records))
	for i := range records {
		responses[i] = ToFailedRecordResponse(&records[i])
	}
	return responses
}

// PendingAdjustmentResponse represents an adjustment in API responses
type PendingAdjustmentResponse struct {
	ID             int64           `json:"id"`
	ExternalRef    string          `json:"external_ref,omitempty"`
	SKU            string          `json:"sku"`
	ProductID      string          `json:"product_id,omitempty"`
	LocationCode   string          `json:"location_code,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Reason         string          `json:"reason,omitempty"`
	RequestedBy    string          `json:"requested_by,omitempty"`
	Status         string          `json:"status"`
	ApprovedBy     string          `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	RejectedBy     string          `json:"rejected_by,omitempty"`
	RejectedReason string          `json:"rejected_reason,omitempty"`
	RejectedAt     *time.Time      `json:"rejected_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ToPendingAdjustmentResponse converts a domain adjustment
func ToPendingAdjustmentResponse(a *integration.PendingAdjustment) PendingAdjustmentResponse {
	return PendingAdjustmentResponse{
		ID:             a.ID,
		ExternalRef:    a.ExternalRef,
		SKU:            a.SKU,
		ProductID:      a.ProductID,
		LocationCode:   a.LocationCode,
		Quantity:       a.Quantity,
		Reason:         a.Reason,
		RequestedBy:    a.RequestedBy,
		Status:         string(a.Status),
		ApprovedBy:     a.ApprovedBy,
		ApprovedAt:     a.ApprovedAt,
		RejectedBy:     a.RejectedBy,
		RejectedReason: a.RejectedReason,
		RejectedAt:     a.RejectedAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// ToPendingAdjustmentResponses converts a list of adjustments
func ToPendingAdjustmentResponses(adjs []integration.PendingAdjustment) []PendingAdjustmentResponse {
	responses := make([]PendingAdjustmentResponse, len(adjs))
	for i := range adjs {
		responses[i] = ToPendingAdjustmentResponse(&adjs[i])
	}
	return responses
}

// MappingResponse represents a mapping in API responses
type MappingResponse struct {
	ID          int64     `json:"id"`
	MappingType string    `json:"mapping_type"`
	SourceValue string    `json:"source_value"`
	TargetValue string    `json:"target_value"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToMappingResponse converts a domain mapping
func ToMappingResponse(m *integration.Mapping) MappingResponse {
	return MappingResponse{
		ID:          m.ID,
		MappingType: string(m.MappingType),
		SourceValue: m.SourceValue,
		TargetValue: m.TargetValue,
		Description: m.Description,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ToMappingResponses converts a list of mappings
func ToMappingResponses(mappings []integration.Mapping) []MappingResponse {
	responses := make([]MappingResponse, len(mappings))
	for i := range mappings {
		responses[i] = ToMappingResponse(&mappings[i])
	}
	return responses
}

// TypeStatusResponse is the status of one sync type
type TypeStatusResponse struct {
	SyncType       string           `json:"sync_type"`
	LastRun        *SyncRunResponse `json:"last_run,omitempty"`
	LastSuccessful *SyncRunResponse `json:"last_successful,omitempty"`
}

// SyncStatusResponse is the body of the status endpoint
type SyncStatusResponse struct {
	Types           []TypeStatusResponse `json:"types"`
	FailedRecords   map[string]int64     `json:"failed_records"`
	PendingApproval int64                `json:"pending_approval"`
}

// ToSyncStatusResponse converts a status snapshot
func ToSyncStatusResponse(s *SyncStatus) SyncStatusResponse {
	response := SyncStatusResponse{
		Types:           make([]TypeStatusResponse, len(s.Types)),
		FailedRecords:   make(map[string]int64, len(s.FailedRecords)),
		PendingApproval: s.PendingApproval,
	}
	for i, t := range s.Types {
		entry := TypeStatusResponse{SyncType: string(t.SyncType)}
		if t.LastRun != nil {
			r := ToSyncRunResponse(t.LastRun)
			entry.LastRun = &r
		}
		if t.LastSuccessful != nil {
			r := ToSyncRunResponse(t.LastSuccessful)
			entry.LastSuccessful = &r
		}
		response.Types[i] = entry
	}
	for status, n := range s.FailedRecords {
		response.FailedRecords[string(status)] = n
	}
	return response
}
