package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/telemetry"
)

// DefaultInitialLookback is the fetch window of the first run of a type
const DefaultInitialLookback = 24 * time.Hour

// Run summaries written on aborted runs
const (
	abortCancelled = "cancelled"
	abortFatal     = "aborted: "
)

// OrchestratorConfig tunes the sync orchestrator
type OrchestratorConfig struct {
	// InitialLookback is used when no successful run of the type exists
	InitialLookback time.Duration
}

// SyncOrchestrator executes one sync run per record type: fetch changed
// records from the source, run them through the pipeline and keep the
// integration log and the failed record store up to date.
type SyncOrchestrator struct {
	runs     integration.SyncRunRepository
	failed   integration.FailedRecordRepository
	source   integration.SourceClient
	pipeline *RecordPipeline
	metrics  integration.MetricsRecorder
	cfg      OrchestratorConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewSyncOrchestrator creates an orchestrator. metrics may be nil.
func NewSyncOrchestrator(
	runs integration.SyncRunRepository,
	failed integration.FailedRecordRepository,
	source integration.SourceClient,
	pipeline *RecordPipeline,
	metrics integration.MetricsRecorder,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *SyncOrchestrator {
	if cfg.InitialLookback <= 0 {
		cfg.InitialLookback = DefaultInitialLookback
	}
	if metrics == nil {
		metrics = integration.NopMetricsRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncOrchestrator{
		runs:     runs,
		failed:   failed,
		source:   source,
		pipeline: pipeline,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunScope runs every type of scope in order. A failing type does not stop
// the following ones unless ctx is done. The returned error joins the
// errors of every type.
func (o *SyncOrchestrator) RunScope(ctx context.Context, scope integration.SyncScope, triggeredBy string) ([]*integration.SyncRun, error) {
	var (
		runs []*integration.SyncRun
		errs []error
	)
	for _, syncType := range scope.Types() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		run, err := o.RunSync(ctx, syncType, triggeredBy)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s sync: %w", syncType, err))
		}
	}
	return runs, errors.Join(errs...)
}

// RunSync executes one run of syncType. The run is always closed before
// RunSync returns; on a fatal error or cancellation the closed run is
// returned together with the error.
func (o *SyncOrchestrator) RunSync(ctx context.Context, syncType integration.SyncType, triggeredBy string) (*integration.SyncRun, error) {
	run, err := integration.NewSyncRun(syncType, triggeredBy, o.now())
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "sync.run",
		telemetry.WithAttribute(telemetry.SpanAttrSyncType, string(syncType)),
		telemetry.WithAttribute(telemetry.SpanAttrTriggeredBy, triggeredBy),
	)
	defer span.End()

	since, err := o.since(ctx, syncType, run.StartTime)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("determine sync window: %w", err)
	}
	if err := o.runs.Create(ctx, run); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("open sync run: %w", err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrRunID, run.ID)

	logger := o.logger.With(
		zap.Int64("run_id", run.ID),
		zap.String("sync_type", string(syncType)),
		zap.String("triggered_by", triggeredBy))
	logger.Info("Sync run started",
		zap.Time("since", since),
		zap.Time("until", run.StartTime))

	runErr := o.execute(ctx, run, since, run.StartTime)
	closeErr := o.close(ctx, run, runErr)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
	}

	logger.Info("Sync run finished",
		zap.String("status", string(run.Status)),
		zap.Int("processed", run.Processed),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Duration("duration", run.Duration()),
		zap.NamedError("abort_reason", runErr))

	if closeErr != nil {
		return run, errors.Join(runErr, closeErr)
	}
	return run, runErr
}

// since is the start of the latest successful run, or the initial lookback
func (o *SyncOrchestrator) since(ctx context.Context, syncType integration.SyncType, now time.Time) (time.Time, error) {
	last, err := o.runs.FindLatestSuccessful(ctx, syncType)
	if err != nil {
		return time.Time{}, err
	}
	if last == nil {
		return now.Add(-o.cfg.InitialLookback), nil
	}
	return last.StartTime, nil
}

func (o *SyncOrchestrator) execute(ctx context.Context, run *integration.SyncRun, from, to time.Time) error {
	records, err := o.fetch(ctx, run.SyncType, from, to)
	if err != nil {
		return err
	}

	return o.pipeline.Process(ctx, records, func(outcome RecordOutcome) error {
		if outcome.Succeeded() {
			run.RecordSuccess()
			return nil
		}
		if err := o.enqueue(ctx, run, outcome); err != nil {
			return err
		}
		run.RecordFailure()
		return nil
	})
}

func (o *SyncOrchestrator) fetch(ctx context.Context, syncType integration.SyncType, from, to time.Time) ([]integration.SyncRecord, error) {
	switch syncType {
	case integration.SyncTypeStock:
		records, err := o.source.FetchStockChanges(ctx, from, to)
		return toSyncRecords(records), err
	case integration.SyncTypeInvoice:
		records, err := o.source.FetchInvoices(ctx, from, to)
		return toSyncRecords(records), err
	case integration.SyncTypeCustomer:
		records, err := o.source.FetchCustomers(ctx, from, to)
		return toSyncRecords(records), err
	default:
		return nil, integration.ErrInvalidSyncType
	}
}

func toSyncRecords[T integration.SyncRecord](records []T) []integration.SyncRecord {
	out := make([]integration.SyncRecord, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

func (o *SyncOrchestrator) enqueue(ctx context.Context, run *integration.SyncRun, outcome RecordOutcome) error {
	runID := run.ID
	failed, err := integration.NewFailedRecord(&runID, outcome.Record, outcome.Err, o.now())
	if err != nil {
		return err
	}
	if err := o.failed.Enqueue(ctx, failed); err != nil {
		return fmt.Errorf("enqueue failed record %s: %w", outcome.Record.RecordKey(), err)
	}
	return nil
}

// close finishes the run. The store write uses a context detached from
// cancellation so a cancelled run never stays RUNNING.
func (o *SyncOrchestrator) close(ctx context.Context, run *integration.SyncRun, runErr error) error {
	now := o.now()
	switch {
	case runErr == nil:
		_ = run.Complete(now)
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		_ = run.Abort(now, abortCancelled)
	default:
		_ = run.Abort(now, abortFatal+runErr.Error())
	}

	if err := o.runs.Close(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Error("Failed to close sync run",
			zap.Int64("run_id", run.ID),
			zap.Error(err))
		return fmt.Errorf("close sync run %d: %w", run.ID, err)
	}
	o.metrics.RecordSyncRun(context.WithoutCancel(ctx), run)
	return nil
}
