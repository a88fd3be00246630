package integration

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// FailedRecord Entity
// ---------------------------------------------------------------------------

// FailedRecordStatus represents where a failed record is in the retry lifecycle
type FailedRecordStatus string

const (
	// FailedRecordStatusFailed is waiting for a retry pass or an operator
	FailedRecordStatusFailed FailedRecordStatus = "FAILED"
	// FailedRecordStatusRetrying is claimed by a retry pass
	FailedRecordStatusRetrying FailedRecordStatus = "RETRYING"
	// FailedRecordStatusResolved was applied or closed by an operator
	FailedRecordStatusResolved FailedRecordStatus = "RESOLVED"
	// FailedRecordStatusIgnored is permanently excluded from retries
	FailedRecordStatusIgnored FailedRecordStatus = "IGNORED"
)

// IsValid returns true if the status is valid
func (s FailedRecordStatus) IsValid() bool {
	switch s {
	case FailedRecordStatusFailed, FailedRecordStatusRetrying, FailedRecordStatusResolved, FailedRecordStatusIgnored:
		return true
	default:
		return false
	}
}

// Resolution texts written by the engine itself
const (
	ResolutionRetrySucceeded     = "Retry succeeded"
	ResolutionMaxRetriesExceeded = "max retries exceeded"
	SystemActor                  = "system"
)

// FailedRecord is a durable record of one item the target did not accept.
// Rows are kept for audit; RetryCount never decreases.
type FailedRecord struct {
	ID int64
	// SyncRunID references the run that produced the failure (traceability only)
	SyncRunID *int64
	// RecordType is the sync type of the stored payload
	RecordType SyncType
	// RecordID is the source identifier of the record
	RecordID string
	// OriginalPayload is the JSON snapshot replayed by retries
	OriginalPayload string
	ErrorMessage    string
	ErrorCode       string
	// Retryable is false for validation and mapping failures; those rows are
	// only replayed when an operator resolves them with resend.
	Retryable   bool
	Status      FailedRecordStatus
	RetryCount  int
	LastRetryAt *time.Time
	NextRetryAt *time.Time
	Resolution  string
	ResolvedAt  *time.Time
	ResolvedBy  string
	// ClaimToken identifies the retry pass currently holding the row
	ClaimToken string
	// ClaimedFrom is the status the record held before its current claim
	ClaimedFrom FailedRecordStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewFailedRecord snapshots record and its classified error as a FAILED entry
func NewFailedRecord(syncRunID *int64, record SyncRecord, cause *SyncError, now time.Time) (*FailedRecord, error) {
	payload, err := EncodeRecord(record)
	if err != nil {
		return nil, err
	}
	return &FailedRecord{
		SyncRunID:       syncRunID,
		RecordType:      record.RecordType(),
		RecordID:        record.RecordKey(),
		OriginalPayload: payload,
		ErrorMessage:    cause.Error(),
		ErrorCode:       cause.Code,
		Retryable:       cause.Retryable(),
		Status:          FailedRecordStatusFailed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Decode restores the stored record snapshot
func (r *FailedRecord) Decode() (SyncRecord, error) {
	return DecodeRecord(r.RecordType, r.OriginalPayload)
}

// MarkRetrySucceeded resolves a claimed record after a successful replay
func (r *FailedRecord) MarkRetrySucceeded(resolution, by string, now time.Time) error {
	if r.Status != FailedRecordStatusRetrying {
		return ErrInvalidStateTransition.WithMessage("integration: only a claimed failed record can be resolved by a retry")
	}
	r.RetryCount++
	r.LastRetryAt = &now
	r.resolve(resolution, by, now)
	return nil
}

// MarkRetryFailed returns a claimed record to FAILED with the new error.
// A record an operator had ignored goes back to IGNORED so retry passes
// never pick it up. The claim token is kept until the store accepts the outcome.
func (r *FailedRecord) MarkRetryFailed(cause *SyncError, nextRetryAt *time.Time, now time.Time) error {
	if r.Status != FailedRecordStatusRetrying {
		return ErrInvalidStateTransition.WithMessage("integration: only a claimed failed record can record a retry failure")
	}
	r.RetryCount++
	r.LastRetryAt = &now
	r.NextRetryAt = nextRetryAt
	r.ErrorMessage = cause.Error()
	r.ErrorCode = cause.Code
	r.Retryable = cause.Retryable()
	r.Status = FailedRecordStatusFailed
	if r.ClaimedFrom == FailedRecordStatusIgnored {
		r.Status = FailedRecordStatusIgnored
		r.NextRetryAt = nil
	}
	r.UpdatedAt = now
	return nil
}

// Resolve closes the record by operator decision without replaying it
func (r *FailedRecord) Resolve(resolution, by string, now time.Time) error {
	if r.Status != FailedRecordStatusFailed && r.Status != FailedRecordStatusIgnored {
		return ErrInvalidStateTransition.WithMessage("integration: failed record is " + string(r.Status) + " and cannot be resolved")
	}
	r.resolve(resolution, by, now)
	return nil
}

// Ignore permanently excludes a FAILED record from retry passes.
// A claimed record may also be ignored by the engine when the retry cap is hit.
func (r *FailedRecord) Ignore(reason, by string, now time.Time) error {
	if r.Status != FailedRecordStatusFailed && r.Status != FailedRecordStatusRetrying {
		return ErrInvalidStateTransition.WithMessage("integration: failed record is " + string(r.Status) + " and cannot be ignored")
	}
	r.Status = FailedRecordStatusIgnored
	r.Resolution = reason
	r.ResolvedBy = by
	r.NextRetryAt = nil
	r.UpdatedAt = now
	return nil
}

func (r *FailedRecord) resolve(resolution, by string, now time.Time) {
	r.Status = FailedRecordStatusResolved
	r.Resolution = resolution
	r.ResolvedBy = by
	r.ResolvedAt = &now
	r.NextRetryAt = nil
	r.UpdatedAt = now
}

// ---------------------------------------------------------------------------
// FailedRecordRepository Interface
// ---------------------------------------------------------------------------

// FailedRecordFilter defines filter criteria for listing failed records
type FailedRecordFilter struct {
	// Status filters by status (optional)
	Status *FailedRecordStatus
	// RecordType filters by sync type (optional)
	RecordType *SyncType
	// SyncRunID filters by originating run (optional)
	SyncRunID *int64
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}

// FailedRecordRepository is the durable retry queue
type FailedRecordRepository interface {
	// Enqueue inserts a new FAILED record and assigns its ID
	Enqueue(ctx context.Context, record *FailedRecord) error

	// ClaimBatch atomically moves up to limit retryable FAILED records that are
	// due at now to RETRYING, oldest ID first, and returns them. Two concurrent
	// claims never return the same record.
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]FailedRecord, error)

	// ClaimOne moves a single FAILED or IGNORED record to RETRYING for an
	// operator-requested resend. Returns ErrInvalidStateTransition if the
	// record is in any other state.
	ClaimOne(ctx context.Context, id int64, now time.Time) (*FailedRecord, error)

	// MarkResolved persists a successful retry of a claimed record
	MarkResolved(ctx context.Context, record *FailedRecord) error

	// MarkFailed persists a failed retry of a claimed record
	MarkFailed(ctx context.Context, record *FailedRecord) error

	// Transition persists record if the stored row is still in status from.
	// Returns ErrInvalidStateTransition when another writer got there first.
	Transition(ctx context.Context, record *FailedRecord, from FailedRecordStatus) error

	// Release returns claimed records to the status they were claimed from
	// without counting a retry
	Release(ctx context.Context, ids []int64, now time.Time) error

	// FindByID finds a record by its ID
	FindByID(ctx context.Context, id int64) (*FailedRecord, error)

	// FindAll lists records ordered by ID with the total matching count
	FindAll(ctx context.Context, filter FailedRecordFilter) ([]FailedRecord, int64, error)

	// CountByStatus returns the number of records in each status
	CountByStatus(ctx context.Context) (map[FailedRecordStatus]int64, error)

	// ResetStaleRetrying releases RETRYING records untouched since the cutoff
	ResetStaleRetrying(ctx context.Context, updatedBefore time.Time, now time.Time) (int64, error)
}
