package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncRunRepository implements integration.SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Create inserts a RUNNING run and writes the generated ID back to run
func (r *GormSyncRunRepository) Create(ctx context.Context, run *integration.SyncRun) error {
	model := &models.SyncRunModel{}
	model.FromDomain(run)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	run.ID = model.ID
	return nil
}

// Close writes the final counters and status, only if the row is still RUNNING
func (r *GormSyncRunRepository) Close(ctx context.Context, run *integration.SyncRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ? AND status = ?", run.ID, integration.SyncRunStatusRunning).
		Updates(map[string]any{
			"status":        run.Status,
			"end_time":      run.EndTime,
			"processed":     run.Processed,
			"succeeded":     run.Succeeded,
			"failed":        run.Failed,
			"error_message": run.ErrorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrSyncRunClosed
	}
	return nil
}

// FindByID finds a run by its ID
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id int64) (*integration.SyncRun, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSyncRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists runs newest first
func (r *GormSyncRunRepository) FindAll(ctx context.Context, filter integration.SyncRunFilter) ([]integration.SyncRun, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncRunModel{})
	if filter.SyncType != nil {
		query = query.Where("sync_type = ?", *filter.SyncType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var runModels []models.SyncRunModel
	if err := query.Order("start_time DESC, id DESC").Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]integration.SyncRun, len(runModels))
	for i := range runModels {
		runs[i] = *runModels[i].ToDomain()
	}
	return runs, nil
}

// FindLatest returns the most recent run of syncType, or nil
func (r *GormSyncRunRepository) FindLatest(ctx context.Context, syncType integration.SyncType) (*integration.SyncRun, error) {
	return r.findLatest(ctx, r.db.WithContext(ctx).Where("sync_type = ?", syncType))
}

// FindLatestSuccessful returns the most recent SUCCESS run of syncType, or nil
func (r *GormSyncRunRepository) FindLatestSuccessful(ctx context.Context, syncType integration.SyncType) (*integration.SyncRun, error) {
	return r.findLatest(ctx, r.db.WithContext(ctx).
		Where("sync_type = ? AND status = ?", syncType, integration.SyncRunStatusSuccess))
}

func (r *GormSyncRunRepository) findLatest(_ context.Context, query *gorm.DB) (*integration.SyncRun, error) {
	var runModels []models.SyncRunModel
	if err := query.Order("start_time DESC, id DESC").Limit(1).Find(&runModels).Error; err != nil {
		return nil, err
	}
	if len(runModels) == 0 {
		return nil, nil
	}
	return runModels[0].ToDomain(), nil
}

// ResetStaleRunning closes RUNNING runs started before the cutoff as FAILED
func (r *GormSyncRunRepository) ResetStaleRunning(ctx context.Context, startedBefore time.Time, message string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("status = ? AND start_time < ?", integration.SyncRunStatusRunning, startedBefore).
		Updates(map[string]any{
			"status":        integration.SyncRunStatusFailed,
			"end_time":      now,
			"error_message": message,
		})
	return result.RowsAffected, result.Error
}
