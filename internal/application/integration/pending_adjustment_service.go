package integration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/domain/shared"
)

// AdjustmentApplier writes an approved adjustment to the target system
type AdjustmentApplier interface {
	ApplyApproved(ctx context.Context, adj *integration.PendingAdjustment) error
}

// PendingAdjustmentService runs the approval workflow for stock movements
// that must not reach the target without a human decision.
type PendingAdjustmentService struct {
	repo           integration.PendingAdjustmentRepository
	eventPublisher shared.EventPublisher
	applier        AdjustmentApplier
	metrics        integration.MetricsRecorder
	logger         *zap.Logger
	now            func() time.Time
}

// NewPendingAdjustmentService creates the workflow service
func NewPendingAdjustmentService(repo integration.PendingAdjustmentRepository, logger *zap.Logger) *PendingAdjustmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PendingAdjustmentService{
		repo:    repo,
		metrics: integration.NopMetricsRecorder{},
		logger:  logger,
		now:     time.Now,
	}
}

// SetEventPublisher sets the publisher workflow events are sent to
func (s *PendingAdjustmentService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetApplier enables pushing approved adjustments to the target
func (s *PendingAdjustmentService) SetApplier(applier AdjustmentApplier) {
	s.applier = applier
}

// SetMetrics sets the recorder of approval decisions
func (s *PendingAdjustmentService) SetMetrics(metrics integration.MetricsRecorder) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// CreatePendingAdjustment records a manual adjustment request
func (s *PendingAdjustmentService) CreatePendingAdjustment(ctx context.Context, req CreatePendingAdjustmentRequest) (*integration.PendingAdjustment, error) {
	adj, err := integration.NewPendingAdjustment(req.SKU, req.ProductID, req.Quantity, req.Reason, req.RequestedBy)
	if err != nil {
		return nil, err
	}
	adj.LocationCode = req.LocationCode
	if err := s.create(ctx, adj); err != nil {
		return nil, err
	}
	return adj, nil
}

// SubmitFromStock diverts a source stock movement. Submitting the same
// movement twice returns the adjustment created the first time.
func (s *PendingAdjustmentService) SubmitFromStock(ctx context.Context, record integration.StockRecord) (*integration.PendingAdjustment, error) {
	existing, err := s.repo.FindByExternalRef(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	adj, err := integration.NewPendingAdjustmentFromStock(record, integration.SystemActor)
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, adj); err != nil {
		return nil, err
	}
	return adj, nil
}

func (s *PendingAdjustmentService) create(ctx context.Context, adj *integration.PendingAdjustment) error {
	if err := s.repo.Create(ctx, adj); err != nil {
		return err
	}
	adj.Created()
	s.publishEvents(ctx, adj)

	s.logger.Info("Pending adjustment created",
		zap.Int64("adjustment_id", adj.ID),
		zap.String("sku", adj.SKU),
		zap.String("quantity", adj.Quantity.String()),
		zap.String("external_ref", adj.ExternalRef))
	return nil
}

// GetPendingAdjustment returns one adjustment
func (s *PendingAdjustmentService) GetPendingAdjustment(ctx context.Context, id int64) (*integration.PendingAdjustment, error) {
	return s.repo.FindByID(ctx, id)
}

// ListPendingAdjustments lists adjustments newest first
func (s *PendingAdjustmentService) ListPendingAdjustments(ctx context.Context, filter integration.PendingAdjustmentFilter) ([]integration.PendingAdjustment, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	return s.repo.FindAll(ctx, filter)
}

// ApprovePendingAdjustment approves a PENDING adjustment. A concurrent
// decision on the same adjustment makes this call fail with
// ErrInvalidStateTransition and leaves the stored state unchanged.
//
// When an applier is set the movement is then pushed to the target; a
// failed push does not undo the approval.
func (s *PendingAdjustmentService) ApprovePendingAdjustment(ctx context.Context, id int64, by string) (*integration.PendingAdjustment, error) {
	adj, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := adj.Approve(by, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Transition(ctx, adj); err != nil {
		return nil, err
	}

	s.metrics.RecordAdjustmentDecision(ctx, adj.Status)
	s.publishEvents(ctx, adj)
	s.logger.Info("Pending adjustment approved",
		zap.Int64("adjustment_id", adj.ID),
		zap.String("approved_by", adj.ApprovedBy))

	if s.applier != nil {
		if err := s.applier.ApplyApproved(ctx, adj); err != nil {
			s.logger.Warn("Approved adjustment was not applied to the target",
				zap.Int64("adjustment_id", adj.ID),
				zap.Error(err))
		}
	}
	return adj, nil
}

// RejectPendingAdjustment rejects a PENDING adjustment with a reason
func (s *PendingAdjustmentService) RejectPendingAdjustment(ctx context.Context, id int64, by, reason string) (*integration.PendingAdjustment, error) {
	adj, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := adj.Reject(by, reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Transition(ctx, adj); err != nil {
		return nil, err
	}

	s.metrics.RecordAdjustmentDecision(ctx, adj.Status)
	s.publishEvents(ctx, adj)
	s.logger.Info("Pending adjustment rejected",
		zap.Int64("adjustment_id", adj.ID),
		zap.String("rejected_by", adj.RejectedBy))
	return adj, nil
}

// publishEvents sends the recorded events after the store write.
// Publish failures are logged; the decision is already committed.
func (s *PendingAdjustmentService) publishEvents(ctx context.Context, adj *integration.PendingAdjustment) {
	defer adj.ClearDomainEvents()
	if s.eventPublisher == nil {
		return
	}
	for _, event := range adj.GetDomainEvents() {
		if err := s.eventPublisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish adjustment event",
				zap.String("event_type", event.EventType()),
				zap.Int64("adjustment_id", adj.ID),
				zap.Error(err))
		}
	}
}

// TargetAdjustmentApplier pushes approved adjustments through the record
// pipeline. A movement the target does not accept is stored as a failed
// record; transient failures are picked up by the retry engine.
type TargetAdjustmentApplier struct {
	pipeline *RecordPipeline
	failed   integration.FailedRecordRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewTargetAdjustmentApplier creates an applier
func NewTargetAdjustmentApplier(pipeline *RecordPipeline, failed integration.FailedRecordRepository, logger *zap.Logger) *TargetAdjustmentApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetAdjustmentApplier{pipeline: pipeline, failed: failed, logger: logger, now: time.Now}
}

// ApplyApproved implements AdjustmentApplier
func (a *TargetAdjustmentApplier) ApplyApproved(ctx context.Context, adj *integration.PendingAdjustment) error {
	record := adj.AsStockRecord()
	var outcome RecordOutcome
	err := a.pipeline.Apply(ctx, []integration.SyncRecord{record}, func(o RecordOutcome) error {
		outcome = o
		return nil
	})
	if err != nil {
		outcome = RecordOutcome{Record: record, Err: integration.Classify(err)}
	}
	if outcome.Succeeded() {
		a.logger.Info("Approved adjustment applied to target",
			zap.Int64("adjustment_id", adj.ID),
			zap.String("record_id", record.ID))
		return nil
	}

	failed, err := integration.NewFailedRecord(nil, record, outcome.Err, a.now())
	if err != nil {
		return err
	}
	if err := a.failed.Enqueue(context.WithoutCancel(ctx), failed); err != nil {
		return err
	}
	return outcome.Err
}
