package integration

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/telemetry"
)

// DefaultPushBatchSize is the number of records sent per target call
const DefaultPushBatchSize = 100

// AdjustmentSubmitter diverts a stock movement into the approval workflow
type AdjustmentSubmitter interface {
	SubmitFromStock(ctx context.Context, record integration.StockRecord) (*integration.PendingAdjustment, error)
}

// PipelineConfig tunes the record pipeline
type PipelineConfig struct {
	PushBatchSize int
	// ApprovalThreshold diverts stock movements with |quantity| >= threshold.
	// Nil disables the check; RequiresApproval still diverts.
	ApprovalThreshold *decimal.Decimal
}

// RecordOutcome is the final result of one record
type RecordOutcome struct {
	Record integration.SyncRecord
	// Err is nil when the record was applied or diverted
	Err *integration.SyncError
	// AdjustmentID is the pending adjustment a diverted record became
	AdjustmentID int64
}

// Succeeded reports whether the record needs no further work
func (o RecordOutcome) Succeeded() bool {
	return o.Err == nil
}

// Diverted reports whether the record went to the approval workflow
func (o RecordOutcome) Diverted() bool {
	return o.AdjustmentID != 0
}

// RecordPipeline takes records from validation to the target. Sync runs,
// retry passes, operator resends and approved adjustments all go through it,
// so a record is treated the same way however it reaches the target.
type RecordPipeline struct {
	resolver  *MappingResolver
	target    integration.TargetClient
	submitter AdjustmentSubmitter
	cfg       PipelineConfig
	logger    *zap.Logger
}

// NewRecordPipeline creates a pipeline. submitter may be nil, in which case
// no record is diverted.
func NewRecordPipeline(
	resolver *MappingResolver,
	target integration.TargetClient,
	submitter AdjustmentSubmitter,
	cfg PipelineConfig,
	logger *zap.Logger,
) *RecordPipeline {
	if cfg.PushBatchSize <= 0 {
		cfg.PushBatchSize = DefaultPushBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordPipeline{
		resolver:  resolver,
		target:    target,
		submitter: submitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetSubmitter sets the approval workflow records are diverted to
func (p *RecordPipeline) SetSubmitter(submitter AdjustmentSubmitter) {
	p.submitter = submitter
}

// Process runs records in order and calls emit once for every record that
// reaches a final outcome, in record order. Records are pushed in chunks of
// one type; a record settled before the push (invalid, unmapped, diverted)
// waits for the chunk ahead of it.
//
// A fatal connectivity error, a cancelled context or an emit error stops
// processing and is returned; records from the start of the chunk being
// pushed at that moment onwards are never emitted.
func (p *RecordPipeline) Process(ctx context.Context, records []integration.SyncRecord, emit func(RecordOutcome) error) error {
	return p.process(ctx, records, true, emit)
}

// Apply pushes records without diverting any of them. Used for movements an
// operator already approved.
func (p *RecordPipeline) Apply(ctx context.Context, records []integration.SyncRecord, emit func(RecordOutcome) error) error {
	return p.process(ctx, records, false, emit)
}

// Replay runs a single record and returns its outcome
func (p *RecordPipeline) Replay(ctx context.Context, record integration.SyncRecord) (RecordOutcome, error) {
	var outcome RecordOutcome
	err := p.Process(ctx, []integration.SyncRecord{record}, func(o RecordOutcome) error {
		outcome = o
		return nil
	})
	return outcome, err
}

// pendingOutcome holds a record's place in the emit order. pushed indexes the
// chunk for records awaiting the push, and is -1 for settled outcomes.
type pendingOutcome struct {
	outcome RecordOutcome
	pushed  int
}

func (p *RecordPipeline) process(ctx context.Context, records []integration.SyncRecord, divert bool, emit func(RecordOutcome) error) error {
	chunk := make([]integration.MappedRecord, 0, p.cfg.PushBatchSize)
	var pending []pendingOutcome

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		outcomes, err := p.push(ctx, chunk)
		chunk = chunk[:0]
		if err != nil {
			return err
		}
		for _, po := range pending {
			o := po.outcome
			if po.pushed >= 0 {
				o = outcomes[po.pushed]
			}
			if err := emit(o); err != nil {
				return err
			}
		}
		pending = pending[:0]
		return nil
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(chunk) > 0 && chunk[0].Record.RecordType() != record.RecordType() {
			if err := flush(); err != nil {
				return err
			}
		}

		mapped, outcome, done := p.prepare(ctx, record, divert)
		if done {
			if len(chunk) > 0 {
				pending = append(pending, pendingOutcome{outcome: outcome, pushed: -1})
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(outcome); err != nil {
				return err
			}
			continue
		}

		pending = append(pending, pendingOutcome{pushed: len(chunk)})
		chunk = append(chunk, mapped)
		if len(chunk) >= p.cfg.PushBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// prepare validates, resolves and possibly diverts a record. done is true when
// the record already has its final outcome and must not be pushed.
func (p *RecordPipeline) prepare(ctx context.Context, record integration.SyncRecord, divert bool) (integration.MappedRecord, RecordOutcome, bool) {
	if err := record.Validate(); err != nil {
		return integration.MappedRecord{}, p.failed(record, err), true
	}

	targets, err := p.resolver.ResolveAll(ctx, record.MappingKeys())
	if err != nil {
		return integration.MappedRecord{}, p.failed(record, err), true
	}

	if stock, ok := record.(integration.StockRecord); ok && divert && p.needsApproval(stock) {
		adj, err := p.submitter.SubmitFromStock(ctx, stock)
		if err != nil {
			return integration.MappedRecord{}, p.failed(record, err), true
		}
		p.logger.Info("Stock movement diverted to approval",
			zap.String("record_id", stock.ID),
			zap.Int64("adjustment_id", adj.ID))
		return integration.MappedRecord{}, RecordOutcome{Record: record, AdjustmentID: adj.ID}, true
	}

	return integration.MappedRecord{Record: record, Targets: targets}, RecordOutcome{}, false
}

func (p *RecordPipeline) needsApproval(r integration.StockRecord) bool {
	if p.submitter == nil || r.ApprovedBy != "" {
		return false
	}
	if r.RequiresApproval {
		return true
	}
	return p.cfg.ApprovalThreshold != nil && r.Quantity.Abs().GreaterThanOrEqual(*p.cfg.ApprovalThreshold)
}

// push sends one chunk of a single type. A non-fatal error for the whole
// call fails every record of the chunk with that error.
func (p *RecordPipeline) push(ctx context.Context, chunk []integration.MappedRecord) ([]RecordOutcome, error) {
	syncType := chunk[0].Record.RecordType()
	ctx, span := telemetry.StartSpan(ctx, "sync.push",
		telemetry.WithAttribute(telemetry.SpanAttrSyncType, string(syncType)),
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(chunk)),
	)
	defer span.End()

	var (
		result *integration.PushResult
		err    error
	)
	switch syncType {
	case integration.SyncTypeStock:
		result, err = p.target.PushStockMovements(ctx, chunk)
	case integration.SyncTypeInvoice:
		result, err = p.target.PushInvoices(ctx, chunk)
	case integration.SyncTypeCustomer:
		result, err = p.target.PushCustomers(ctx, chunk)
	default:
		err = integration.NewValidationError(fmt.Sprintf("unsupported record type %q", syncType))
	}

	if err != nil {
		telemetry.RecordError(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if integration.IsFatal(err) {
			return nil, err
		}
		p.logger.Warn("Push failed for whole chunk",
			zap.String("sync_type", string(syncType)),
			zap.Int("records", len(chunk)),
			zap.Error(err))
	}

	outcomes := make([]RecordOutcome, len(chunk))
	for i, mapped := range chunk {
		recordErr := err
		if recordErr == nil {
			recordErr = result.ErrorFor(mapped.Record.RecordKey())
		}
		if recordErr != nil {
			outcomes[i] = p.failed(mapped.Record, recordErr)
			continue
		}
		outcomes[i] = RecordOutcome{Record: mapped.Record}
	}
	return outcomes, nil
}

func (p *RecordPipeline) failed(record integration.SyncRecord, err error) RecordOutcome {
	cause := integration.Classify(err)
	p.logger.Debug("Record failed",
		zap.String("sync_type", string(record.RecordType())),
		zap.String("record_id", record.RecordKey()),
		zap.String("error_code", cause.Code),
		zap.Error(cause))
	return RecordOutcome{Record: record, Err: cause}
}
