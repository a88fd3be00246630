package integration

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// External system ports
// ---------------------------------------------------------------------------

// SourceClient reads changed records from the source system of record.
// Implementations return *SyncError values so callers can tell transient
// failures from fatal connectivity loss.
type SourceClient interface {
	// FetchStockChanges returns stock movements that happened in [from, to]
	FetchStockChanges(ctx context.Context, from, to time.Time) ([]StockRecord, error)
	// FetchInvoices returns invoices issued or changed in [from, to]
	FetchInvoices(ctx context.Context, from, to time.Time) ([]InvoiceRecord, error)
	// FetchCustomers returns customers created or changed in [from, to]
	FetchCustomers(ctx context.Context, from, to time.Time) ([]CustomerRecord, error)
}

// TargetClient writes records to the target system of record.
// Pushes must be idempotent upserts keyed by the source record key, so that
// replaying a record never applies it twice.
type TargetClient interface {
	PushStockMovements(ctx context.Context, records []MappedRecord) (*PushResult, error)
	PushInvoices(ctx context.Context, records []MappedRecord) (*PushResult, error)
	PushCustomers(ctx context.Context, records []MappedRecord) (*PushResult, error)
}

// PushResult reports per-record outcomes of one push call
type PushResult struct {
	Succeeded int
	Failed    int
	// Errors holds the error of each failed record keyed by RecordKey
	Errors map[string]error
}

// ErrorFor returns the error reported for a record key, or nil
func (r *PushResult) ErrorFor(key string) error {
	if r == nil || r.Errors == nil {
		return nil
	}
	return r.Errors[key]
}

// NewPushResult summarizes per-record errors for a pushed batch
func NewPushResult(total int, errs map[string]error) *PushResult {
	if errs == nil {
		errs = make(map[string]error)
	}
	return &PushResult{
		Succeeded: total - len(errs),
		Failed:    len(errs),
		Errors:    errs,
	}
}

// MetricsRecorder receives engine measurements. Implementations must be safe
// for concurrent use and must not block.
type MetricsRecorder interface {
	// RecordSyncRun is called once per closed run
	RecordSyncRun(ctx context.Context, run *SyncRun)
	// RecordRetryAttempt is called once per replayed failed record
	RecordRetryAttempt(ctx context.Context, recordType SyncType, succeeded bool)
	// RecordAdjustmentDecision is called when an adjustment leaves PENDING
	RecordAdjustmentDecision(ctx context.Context, status PendingAdjustmentStatus)
}

// NopMetricsRecorder discards every measurement
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) RecordSyncRun(context.Context, *SyncRun)                           {}
func (NopMetricsRecorder) RecordRetryAttempt(context.Context, SyncType, bool)                {}
func (NopMetricsRecorder) RecordAdjustmentDecision(context.Context, PendingAdjustmentStatus) {}
