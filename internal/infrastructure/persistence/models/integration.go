package models

import (
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// SyncRunModel is the persistence model for the SyncRun integration log entry.
type SyncRunModel struct {
	ID           int64                     `gorm:"primaryKey;autoIncrement"`
	SyncType     integration.SyncType      `gorm:"type:varchar(20);not null;index:idx_sync_runs_type_start,priority:1"`
	Status       integration.SyncRunStatus `gorm:"type:varchar(20);not null;index"`
	StartTime    time.Time                 `gorm:"not null;index:idx_sync_runs_type_start,priority:2"`
	EndTime      *time.Time
	Processed    int    `gorm:"not null;default:0"`
	Succeeded    int    `gorm:"not null;default:0"`
	Failed       int    `gorm:"not null;default:0"`
	ErrorMessage string `gorm:"type:text"`
	TriggeredBy  string `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *SyncRunModel) ToDomain() *integration.SyncRun {
	return &integration.SyncRun{
		ID:           m.ID,
		SyncType:     m.SyncType,
		Status:       m.Status,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		Processed:    m.Processed,
		Succeeded:    m.Succeeded,
		Failed:       m.Failed,
		ErrorMessage: m.ErrorMessage,
		TriggeredBy:  m.TriggeredBy,
	}
}

// FromDomain populates the persistence model from a domain SyncRun
func (m *SyncRunModel) FromDomain(r *integration.SyncRun) {
	m.ID = r.ID
	m.SyncType = r.SyncType
	m.Status = r.Status
	m.StartTime = r.StartTime
	m.EndTime = r.EndTime
	m.Processed = r.Processed
	m.Succeeded = r.Succeeded
	m.Failed = r.Failed
	m.ErrorMessage = r.ErrorMessage
	m.TriggeredBy = r.TriggeredBy
}

// FailedRecordModel is the persistence model for the retry queue.
// The (status, id) index serves the claim query.
type FailedRecordModel struct {
	ID              int64                          `gorm:"primaryKey;autoIncrement"`
	SyncRunID       *int64                         `gorm:"index"`
	RecordType      integration.SyncType           `gorm:"type:varchar(20);not null;index"`
	RecordID        string                         `gorm:"type:varchar(100);not null;index"`
	OriginalPayload string                         `gorm:"type:text;not null"`
	ErrorMessage    string                         `gorm:"type:text"`
	ErrorCode       string                         `gorm:"type:varchar(50)"`
	Retryable       bool                           `gorm:"not null"`
	Status          integration.FailedRecordStatus `gorm:"type:varchar(20);not null;index:idx_failed_records_status_id,priority:1"`
	RetryCount      int                            `gorm:"not null;default:0"`
	LastRetryAt     *time.Time
	NextRetryAt     *time.Time `gorm:"index"`
	Resolution      string     `gorm:"type:text"`
	ResolvedAt      *time.Time
	ResolvedBy      string                         `gorm:"type:varchar(100)"`
	ClaimToken      string                         `gorm:"type:varchar(64);index"`
	ClaimedFrom     integration.FailedRecordStatus `gorm:"type:varchar(20)"`
	CreatedAt       time.Time                      `gorm:"not null"`
	UpdatedAt       time.Time                      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FailedRecordModel) TableName() string {
	return "failed_records"
}

// ToDomain converts the persistence model to a domain FailedRecord
func (m *FailedRecordModel) ToDomain() *integration.FailedRecord {
	return &integration.FailedRecord{
		ID:              m.ID,
		SyncRunID:       m.SyncRunID,
		RecordType:      m.RecordType,
		RecordID:        m.RecordID,
		OriginalPayload: m.OriginalPayload,
		ErrorMessage:    m.ErrorMessage,
		ErrorCode:       m.ErrorCode,
		Retryable:       m.Retryable,
		Status:          m.Status,
		RetryCount:      m.RetryCount,
		LastRetryAt:     m.LastRetryAt,
		NextRetryAt:     m.NextRetryAt,
		Resolution:      m.Resolution,
		ResolvedAt:      m.ResolvedAt,
		ResolvedBy:      m.ResolvedBy,
		ClaimToken:      m.ClaimToken,
		ClaimedFrom:     m.ClaimedFrom,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain FailedRecord
func (m *FailedRecordModel) FromDomain(r *integration.FailedRecord) {
	m.ID = r.ID
	m.SyncRunID = r.SyncRunID
	m.RecordType = r.RecordType
	m.RecordID = r.RecordID
	m.OriginalPayload = r.OriginalPayload
	m.ErrorMessage = r.ErrorMessage
	m.ErrorCode = r.ErrorCode
	m.Retryable = r.Retryable
	m.Status = r.Status
	m.RetryCount = r.RetryCount
	m.LastRetryAt = r.LastRetryAt
	m.NextRetryAt = r.NextRetryAt
	m.Resolution = r.Resolution
	m.ResolvedAt = r.ResolvedAt
	m.ResolvedBy = r.ResolvedBy
	m.ClaimToken = r.ClaimToken
	m.ClaimedFrom = r.ClaimedFrom
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// MappingModel is the persistence model for source to target identifier mappings
type MappingModel struct {
	ID          int64                   `gorm:"primaryKey;autoIncrement"`
	MappingType integration.MappingType `gorm:"type:varchar(30);not null;uniqueIndex:uq_mappings_type_source,priority:1"`
	SourceValue string                  `gorm:"type:varchar(200);not null;uniqueIndex:uq_mappings_type_source,priority:2"`
	TargetValue string                  `gorm:"type:varchar(200);not null"`
	Description string                  `gorm:"type:text"`
	IsActive    bool                    `gorm:"not null"`
	CreatedAt   time.Time               `gorm:"not null"`
	UpdatedAt   time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MappingModel) TableName() string {
	return "mappings"
}

// ToDomain converts the persistence model to a domain Mapping
func (m *MappingModel) ToDomain() *integration.Mapping {
	return &integration.Mapping{
		ID:          m.ID,
		MappingType: m.MappingType,
		SourceValue: m.SourceValue,
		TargetValue: m.TargetValue,
		Description: m.Description,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Mapping
func (m *MappingModel) FromDomain(mapping *integration.Mapping) {
	m.ID = mapping.ID
	m.MappingType = mapping.MappingType
	m.SourceValue = mapping.SourceValue
	m.TargetValue = mapping.TargetValue
	m.Description = mapping.Description
	m.IsActive = mapping.IsActive
	m.CreatedAt = mapping.CreatedAt
	m.UpdatedAt = mapping.UpdatedAt
}

// PendingAdjustmentModel is the persistence model for stock adjustments awaiting approval
type PendingAdjustmentModel struct {
	ID             int64                               `gorm:"primaryKey;autoIncrement"`
	ExternalRef    string                              `gorm:"type:varchar(100);index"`
	SKU            string                              `gorm:"type:varchar(100);not null;index"`
	ProductID      string                              `gorm:"type:varchar(100)"`
	LocationCode   string                              `gorm:"type:varchar(50)"`
	Quantity       decimal.Decimal                     `gorm:"type:decimal(18,4);not null"`
	Reason         string                              `gorm:"type:text"`
	RequestedBy    string                              `gorm:"type:varchar(100);not null"`
	Status         integration.PendingAdjustmentStatus `gorm:"type:varchar(20);not null;index"`
	ApprovedBy     string                              `gorm:"type:varchar(100)"`
	ApprovedAt     *time.Time
	RejectedBy     string `gorm:"type:varchar(100)"`
	RejectedReason string `gorm:"type:text"`
	RejectedAt     *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PendingAdjustmentModel) TableName() string {
	return "pending_adjustments"
}

// ToDomain converts the persistence model to a domain PendingAdjustment
func (m *PendingAdjustmentModel) ToDomain() *integration.PendingAdjustment {
	return &integration.PendingAdjustment{
		ID:             m.ID,
		ExternalRef:    m.ExternalRef,
		SKU:            m.SKU,
		ProductID:      m.ProductID,
		LocationCode:   m.LocationCode,
		Quantity:       m.Quantity,
		Reason:         m.Reason,
		RequestedBy:    m.RequestedBy,
		Status:         m.Status,
		ApprovedBy:     m.ApprovedBy,
		ApprovedAt:     m.ApprovedAt,
		RejectedBy:     m.RejectedBy,
		RejectedReason: m.RejectedReason,
		RejectedAt:     m.RejectedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain PendingAdjustment
func (m *PendingAdjustmentModel) FromDomain(a *integration.PendingAdjustment) {
	m.ID = a.ID
	m.ExternalRef = a.ExternalRef
	m.SKU = a.SKU
	m.ProductID = a.ProductID
	m.LocationCode = a.LocationCode
	m.Quantity = a.Quantity
	m.Reason = a.Reason
	m.RequestedBy = a.RequestedBy
	m.Status = a.Status
	m.ApprovedBy = a.ApprovedBy
	m.ApprovedAt = a.ApprovedAt
	m.RejectedBy = a.RejectedBy
	m.RejectedReason = a.RejectedReason
	m.RejectedAt = a.RejectedAt
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// AllModels lists every model owned by the sync engine, for AutoMigrate in tests
func AllModels() []any {
	return []any{
		&SyncRunModel{},
		&FailedRecordModel{},
		&MappingModel{},
		&PendingAdjustmentModel{},
	}
}
