package integration

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/telemetry"
)

// Retry engine defaults
const (
	DefaultRetryBatchSize = 50
	DefaultRetryBaseDelay = 30 * time.Minute
	DefaultRetryMaxDelay  = 24 * time.Hour
)

// RetryConfig tunes the retry engine
type RetryConfig struct {
	BatchSize int
	// MaxRetries ignores a record once its retry count reaches it. Zero is unbounded.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// RetryPassResult summarizes one retry pass
type RetryPassResult struct {
	TriggeredBy string    `json:"triggered_by"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Claimed     int       `json:"claimed"`
	Resolved    int       `json:"resolved"`
	Failed      int       `json:"failed"`
	Ignored     int       `json:"ignored"`
	Released    int       `json:"released"`
}

// RetryEngine replays failed records through the record pipeline
type RetryEngine struct {
	failed   integration.FailedRecordRepository
	pipeline *RecordPipeline
	metrics  integration.MetricsRecorder
	cfg      RetryConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewRetryEngine creates a retry engine. metrics may be nil.
func NewRetryEngine(
	failed integration.FailedRecordRepository,
	pipeline *RecordPipeline,
	metrics integration.MetricsRecorder,
	cfg RetryConfig,
	logger *zap.Logger,
) *RetryEngine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRetryBatchSize
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryMaxDelay
	}
	if metrics == nil {
		metrics = integration.NopMetricsRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryEngine{
		failed:   failed,
		pipeline: pipeline,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunRetryPass claims due retryable records batch by batch and replays each
// one. On cancellation or a fatal connectivity error the records still
// claimed are released without counting a retry and the error is returned.
func (e *RetryEngine) RunRetryPass(ctx context.Context, triggeredBy string) (*RetryPassResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "retry.pass",
		telemetry.WithAttribute(telemetry.SpanAttrTriggeredBy, triggeredBy),
	)
	defer span.End()

	result := &RetryPassResult{TriggeredBy: triggeredBy, StartedAt: e.now()}
	err := e.runPass(ctx, result)
	result.FinishedAt = e.now()
	if err != nil {
		telemetry.RecordError(span, err)
	}

	e.logger.Info("Retry pass finished",
		zap.String("triggered_by", triggeredBy),
		zap.Int("claimed", result.Claimed),
		zap.Int("resolved", result.Resolved),
		zap.Int("failed", result.Failed),
		zap.Int("ignored", result.Ignored),
		zap.Int("released", result.Released),
		zap.NamedError("abort_reason", err))
	return result, err
}

func (e *RetryEngine) runPass(ctx context.Context, result *RetryPassResult) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := e.failed.ClaimBatch(ctx, e.cfg.BatchSize, e.now())
		if err != nil {
			return err
		}
		result.Claimed += len(batch)

		for i := range batch {
			if err := e.retry(ctx, &batch[i], result); err != nil {
				result.Released += e.release(ctx, batch[i:])
				return err
			}
		}
		if len(batch) < e.cfg.BatchSize {
			return nil
		}
	}
}

// retry replays one claimed record. Only an abort of the whole pass is
// returned; per-record failures are persisted on the record.
func (e *RetryEngine) retry(ctx context.Context, record *integration.FailedRecord, result *RetryPassResult) error {
	outcome, err := e.replay(ctx, record)
	if err != nil {
		return err
	}

	e.metrics.RecordRetryAttempt(ctx, record.RecordType, outcome.Succeeded())
	if outcome.Succeeded() {
		if err := record.MarkRetrySucceeded(integration.ResolutionRetrySucceeded, integration.SystemActor, e.now()); err != nil {
			return err
		}
		if err := e.failed.MarkResolved(ctx, record); err != nil {
			return err
		}
		result.Resolved++
		return nil
	}

	ignored, err := e.recordFailure(ctx, record, outcome.Err, true)
	if err != nil {
		return err
	}
	if ignored {
		result.Ignored++
	} else {
		result.Failed++
	}
	return nil
}

// replay decodes the payload snapshot and runs it through the pipeline.
// An undecodable payload is a validation failure of the record.
func (e *RetryEngine) replay(ctx context.Context, record *integration.FailedRecord) (RecordOutcome, error) {
	decoded, err := record.Decode()
	if err != nil {
		return RecordOutcome{Err: integration.Classify(err)}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "retry.record",
		telemetry.WithAttribute(telemetry.SpanAttrFailedID, record.ID),
		telemetry.WithAttribute(telemetry.SpanAttrRecordKey, record.RecordID),
		telemetry.WithAttribute(telemetry.SpanAttrSyncType, string(record.RecordType)),
	)
	defer span.End()

	outcome, err := e.pipeline.Replay(ctx, decoded)
	if err != nil {
		telemetry.RecordError(span, err)
		if isAbort(err) {
			return RecordOutcome{}, err
		}
		return RecordOutcome{Record: decoded, Err: integration.Classify(err)}, nil
	}
	return outcome, nil
}

// recordFailure persists a failed attempt. With capped set, a record reaching
// MaxRetries is ignored instead of returned to FAILED.
func (e *RetryEngine) recordFailure(ctx context.Context, record *integration.FailedRecord, cause *integration.SyncError, capped bool) (bool, error) {
	now := e.now()
	var next *time.Time
	if cause.Retryable() {
		at := now.Add(e.backoff(record.RetryCount + 1))
		next = &at
	}
	if err := record.MarkRetryFailed(cause, next, now); err != nil {
		return false, err
	}

	ignored := capped && e.cfg.MaxRetries > 0 && record.RetryCount >= e.cfg.MaxRetries
	if ignored {
		if err := record.Ignore(integration.ResolutionMaxRetriesExceeded, integration.SystemActor, now); err != nil {
			return false, err
		}
	}
	if err := e.failed.MarkFailed(ctx, record); err != nil {
		return false, err
	}

	e.logger.Debug("Retry failed",
		zap.Int64("failed_record_id", record.ID),
		zap.Int("retry_count", record.RetryCount),
		zap.Bool("ignored", ignored),
		zap.String("error_code", cause.Code))
	return ignored, nil
}

// backoff is BaseDelay doubled per attempt after the first, capped at MaxDelay
func (e *RetryEngine) backoff(attempt int) time.Duration {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         e.cfg.MaxDelay,
		Clock:               backoff.SystemClock,
	}
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 1; i < attempt && delay < e.cfg.MaxDelay; i++ {
		delay = policy.NextBackOff()
	}
	return min(delay, e.cfg.MaxDelay)
}

// release hands claimed records back to the status they were claimed from
// using a detached context. Rows that already left RETRYING are untouched.
func (e *RetryEngine) release(ctx context.Context, records []integration.FailedRecord) int {
	if len(records) == 0 {
		return 0
	}
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := e.failed.Release(context.WithoutCancel(ctx), ids, e.now()); err != nil {
		e.logger.Error("Failed to release claimed records",
			zap.Int64s("ids", ids),
			zap.Error(err))
		return 0
	}
	return len(ids)
}

// Resend replays one record on behalf of an operator. The record must be
// FAILED or IGNORED. On success it is RESOLVED with the operator's
// resolution; on failure it returns to its previous status with the new
// error, which is also returned. An ignored record stays out of retry passes.
func (e *RetryEngine) Resend(ctx context.Context, id int64, resolution, by string) (*integration.FailedRecord, error) {
	record, err := e.failed.ClaimOne(ctx, id, e.now())
	if err != nil {
		return nil, err
	}

	outcome, err := e.replay(ctx, record)
	if err != nil {
		e.release(ctx, []integration.FailedRecord{*record})
		return nil, err
	}
	e.metrics.RecordRetryAttempt(ctx, record.RecordType, outcome.Succeeded())

	if outcome.Succeeded() {
		if err := record.MarkRetrySucceeded(resolution, by, e.now()); err != nil {
			return nil, err
		}
		if err := e.failed.MarkResolved(ctx, record); err != nil {
			return nil, err
		}
		e.logger.Info("Failed record resent",
			zap.Int64("failed_record_id", id),
			zap.String("resolved_by", by))
		return record, nil
	}

	if _, err := e.recordFailure(ctx, record, outcome.Err, false); err != nil {
		return nil, err
	}
	return record, outcome.Err
}

// isAbort reports whether err stops a pass rather than failing one record
func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || integration.IsFatal(err)
}
