package integration

import (
	"context"

	"github.com/erp/syncengine/internal/domain/integration"
)

const defaultRunLimit = 50

// TypeStatus is the dashboard view of one sync type
type TypeStatus struct {
	SyncType       integration.SyncType
	LastRun        *integration.SyncRun
	LastSuccessful *integration.SyncRun
}

// SyncStatus is the overall health of the engine's data
type SyncStatus struct {
	Types           []TypeStatus
	FailedRecords   map[integration.FailedRecordStatus]int64
	PendingApproval int64
}

// SyncRunService reads the integration log
type SyncRunService struct {
	runs        integration.SyncRunRepository
	failed      integration.FailedRecordRepository
	adjustments integration.PendingAdjustmentRepository
}

// NewSyncRunService creates the service
func NewSyncRunService(
	runs integration.SyncRunRepository,
	failed integration.FailedRecordRepository,
	adjustments integration.PendingAdjustmentRepository,
) *SyncRunService {
	return &SyncRunService{runs: runs, failed: failed, adjustments: adjustments}
}

// ListSyncRuns lists runs newest first
func (s *SyncRunService) ListSyncRuns(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultRunLimit
	}
	return s.runs.FindAll(ctx, filter)
}

// GetSyncRun returns one run
func (s *SyncRunService) GetSyncRun(ctx context.Context, id int64) (*integration.SyncRun, error) {
	return s.runs.FindByID(ctx, id)
}

// GetSyncStatus returns the latest and latest successful run of every type
// together with failed record counts and the approval backlog.
func (s *SyncRunService) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	status := &SyncStatus{}
	for _, syncType := range integration.AllSyncTypes() {
		last, err := s.runs.FindLatest(ctx, syncType)
		if err != nil {
			return nil, err
		}
		lastOK, err := s.runs.FindLatestSuccessful(ctx, syncType)
		if err != nil {
			return nil, err
		}
		status.Types = append(status.Types, TypeStatus{
			SyncType:       syncType,
			LastRun:        last,
			LastSuccessful: lastOK,
		})
	}

	counts, err := s.failed.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	status.FailedRecords = counts

	pending := integration.PendingAdjustmentStatusPending
	_, total, err := s.adjustments.FindAll(ctx, integration.PendingAdjustmentFilter{
		Status:   &pending,
		Page:     1,
		PageSize: 1,
	})
	if err != nil {
		return nil, err
	}
	status.PendingApproval = total
	return status, nil
}
