package integration

import (
	"context"
	"strconv"
	"time"
)

// ---------------------------------------------------------------------------
// SyncRun Entity (Integration Log entry)
// ---------------------------------------------------------------------------

// SyncRunStatus represents the lifecycle of a sync run
type SyncRunStatus string

const (
	// SyncRunStatusRunning means the orchestrator is still processing the run
	SyncRunStatusRunning SyncRunStatus = "RUNNING"
	// SyncRunStatusSuccess means every processed record was applied
	SyncRunStatusSuccess SyncRunStatus = "SUCCESS"
	// SyncRunStatusFailed means at least one record failed or the run was aborted
	SyncRunStatusFailed SyncRunStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s SyncRunStatus) IsValid() bool {
	switch s {
	case SyncRunStatusRunning, SyncRunStatusSuccess, SyncRunStatusFailed:
		return true
	default:
		return false
	}
}

// SyncRun is one execution of the orchestrator for a given sync type.
// It is created RUNNING and closed exactly once; it is immutable after that.
type SyncRun struct {
	// ID is the unique identifier of the run
	ID int64
	// SyncType is the record type this run synchronized
	SyncType SyncType
	// Status is RUNNING until the run is closed
	Status SyncRunStatus
	// StartTime is when the run was opened
	StartTime time.Time
	// EndTime is when the run was closed
	EndTime *time.Time
	// Processed is the number of records with a final outcome
	Processed int
	// Succeeded is the number of records applied to the target
	Succeeded int
	// Failed is the number of records written to the failed record store
	Failed int
	// ErrorMessage summarizes why the run failed
	ErrorMessage string
	// TriggeredBy names the scheduler job or operator that started the run
	TriggeredBy string
}

// NewSyncRun opens a run in RUNNING state
func NewSyncRun(syncType SyncType, triggeredBy string, now time.Time) (*SyncRun, error) {
	if !syncType.IsValid() {
		return nil, ErrInvalidSyncType
	}
	return &SyncRun{
		SyncType:    syncType,
		Status:      SyncRunStatusRunning,
		StartTime:   now,
		TriggeredBy: triggeredBy,
	}, nil
}

// RecordSuccess counts one record applied to the target
func (r *SyncRun) RecordSuccess() {
	r.Processed++
	r.Succeeded++
}

// RecordFailure counts one record that ended in the failed record store
func (r *SyncRun) RecordFailure() {
	r.Processed++
	r.Failed++
}

// IsClosed returns true once the run has left RUNNING
func (r *SyncRun) IsClosed() bool {
	return r.Status != SyncRunStatusRunning
}

// Complete closes the run from its counters: SUCCESS when nothing failed
func (r *SyncRun) Complete(now time.Time) error {
	if r.IsClosed() {
		return ErrSyncRunClosed
	}
	r.EndTime = &now
	if r.Failed == 0 {
		r.Status = SyncRunStatusSuccess
		return nil
	}
	r.Status = SyncRunStatusFailed
	if r.ErrorMessage == "" {
		r.ErrorMessage = pluralRecords(r.Failed) + " failed"
	}
	return nil
}

// Abort closes the run as FAILED with a summarized error, keeping the
// counters of the records already processed.
func (r *SyncRun) Abort(now time.Time, message string) error {
	if r.IsClosed() {
		return ErrSyncRunClosed
	}
	r.EndTime = &now
	r.Status = SyncRunStatusFailed
	r.ErrorMessage = message
	return nil
}

// Duration returns how long the run took, or zero while it is running
func (r *SyncRun) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

func pluralRecords(n int) string {
	if n == 1 {
		return "1 record"
	}
	return strconv.Itoa(n) + " records"
}

// ---------------------------------------------------------------------------
// SyncRunRepository Interface
// ---------------------------------------------------------------------------

// SyncRunFilter defines filter criteria for listing sync runs
type SyncRunFilter struct {
	// SyncType filters by type (optional)
	SyncType *SyncType
	// Status filters by status (optional)
	Status *SyncRunStatus
	// Limit bounds the number of runs returned, newest first
	Limit int
}

// SyncRunRepository persists the integration log
type SyncRunRepository interface {
	// Create inserts a new RUNNING run and assigns its ID
	Create(ctx context.Context, run *SyncRun) error
	// Close persists the final state of a run that is still RUNNING in the store.
	// Returns ErrSyncRunClosed if the stored row was already closed.
	Close(ctx context.Context, run *SyncRun) error
	// FindByID finds a run by its ID
	FindByID(ctx context.Context, id int64) (*SyncRun, error)
	// FindAll lists runs ordered by start time, newest first
	FindAll(ctx context.Context, filter SyncRunFilter) ([]SyncRun, error)
	// FindLatest returns the most recent run of a type, or nil if none exists
	FindLatest(ctx context.Context, syncType SyncType) (*SyncRun, error)
	// FindLatestSuccessful returns the most recent SUCCESS run of a type, or nil
	FindLatestSuccessful(ctx context.Context, syncType SyncType) (*SyncRun, error)
	// ResetStaleRunning closes RUNNING runs started before the cutoff as FAILED
	ResetStaleRunning(ctx context.Context, startedBefore time.Time, message string, now time.Time) (int64, error)
}
