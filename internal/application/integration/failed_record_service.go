package integration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp/syncengine/internal/domain/integration"
)

// FailedRecordService exposes the failed record store to operators
type FailedRecordService struct {
	repo   integration.FailedRecordRepository
	retry  *RetryEngine
	logger *zap.Logger
	now    func() time.Time
}

// NewFailedRecordService creates the service. retry is used for resends.
func NewFailedRecordService(repo integration.FailedRecordRepository, retry *RetryEngine, logger *zap.Logger) *FailedRecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailedRecordService{repo: repo, retry: retry, logger: logger, now: time.Now}
}

// ListFailedRecords lists failed records by ascending ID
func (s *FailedRecordService) ListFailedRecords(ctx context.Context, filter integration.FailedRecordFilter) ([]integration.FailedRecord, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	return s.repo.FindAll(ctx, filter)
}

// GetFailedRecord returns one failed record
func (s *FailedRecordService) GetFailedRecord(ctx context.Context, id int64) (*integration.FailedRecord, error) {
	return s.repo.FindByID(ctx, id)
}

// ResolveFailedRecord closes a FAILED or IGNORED record. With resend the
// record is replayed first and only resolved if the target accepts it; a
// failed resend leaves it FAILED and returns the error.
func (s *FailedRecordService) ResolveFailedRecord(ctx context.Context, id int64, req ResolveFailedRecordRequest) (*integration.FailedRecord, error) {
	if req.ResolvedBy == "" {
		return nil, integration.ErrActorRequired
	}
	if req.Resend {
		resolution := req.Resolution
		if resolution == "" {
			resolution = integration.ResolutionRetrySucceeded
		}
		return s.retry.Resend(ctx, id, resolution, req.ResolvedBy)
	}

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := record.Status
	if err := record.Resolve(req.Resolution, req.ResolvedBy, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Transition(ctx, record, from); err != nil {
		return nil, err
	}

	s.logger.Info("Failed record resolved",
		zap.Int64("failed_record_id", id),
		zap.String("resolved_by", req.ResolvedBy))
	return record, nil
}

// IgnoreFailedRecord excludes a FAILED record from retry passes
func (s *FailedRecordService) IgnoreFailedRecord(ctx context.Context, id int64, req IgnoreFailedRecordRequest) (*integration.FailedRecord, error) {
	if req.IgnoredBy == "" {
		return nil, integration.ErrActorRequired
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != integration.FailedRecordStatusFailed {
		return nil, integration.ErrInvalidStateTransition.WithMessage(
			"integration: failed record is " + string(record.Status) + " and cannot be ignored")
	}
	if err := record.Ignore(req.Reason, req.IgnoredBy, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Transition(ctx, record, integration.FailedRecordStatusFailed); err != nil {
		return nil, err
	}

	s.logger.Info("Failed record ignored",
		zap.Int64("failed_record_id", id),
		zap.String("ignored_by", req.IgnoredBy))
	return record, nil
}

// CountByStatus returns the number of failed records in each status
func (s *FailedRecordService) CountByStatus(ctx context.Context) (map[integration.FailedRecordStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}
