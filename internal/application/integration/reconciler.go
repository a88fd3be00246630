package integration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
)

// DefaultStaleAfter is how old RUNNING/RETRYING state must be to count as abandoned
const DefaultStaleAfter = time.Hour

// InterruptedRunMessage is written on runs closed by startup reconciliation
const InterruptedRunMessage = "interrupted: reset by startup reconciliation"

// ReconcileResult reports what a reconciliation reset
type ReconcileResult struct {
	RunsReset       int64 `json:"runs_reset"`
	RecordsReleased int64 `json:"records_released"`
}

// StartupReconciler repairs state left behind by a process that died
// mid-run: RUNNING runs are closed FAILED and RETRYING records go back to
// FAILED so the next retry pass claims them again.
type StartupReconciler struct {
	runs       integration.SyncRunRepository
	failed     integration.FailedRecordRepository
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewStartupReconciler creates a reconciler
func NewStartupReconciler(runs integration.SyncRunRepository, failed integration.FailedRecordRepository, staleAfter time.Duration, logger *zap.Logger) *StartupReconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StartupReconciler{
		runs:       runs,
		failed:     failed,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Reconcile resets state older than the stale threshold
func (r *StartupReconciler) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	now := r.now()
	cutoff := now.Add(-r.staleAfter)

	runs, err := r.runs.ResetStaleRunning(ctx, cutoff, InterruptedRunMessage, now)
	if err != nil {
		return nil, fmt.Errorf("reset stale sync runs: %w", err)
	}
	records, err := r.failed.ResetStaleRetrying(ctx, cutoff, now)
	if err != nil {
		return nil, fmt.Errorf("release stale failed records: %w", err)
	}

	result := &ReconcileResult{RunsReset: runs, RecordsReleased: records}
	if runs > 0 || records > 0 {
		r.logger.Warn("Startup reconciliation reset abandoned state",
			zap.Int64("runs_reset", runs),
			zap.Int64("records_released", records),
			zap.Time("cutoff", cutoff))
	} else {
		r.logger.Info("Startup reconciliation found nothing to reset")
	}
	return result, nil
}
