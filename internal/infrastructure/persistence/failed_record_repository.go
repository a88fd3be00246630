package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultClaimBatchSize is used when ClaimBatch is called with a non-positive limit
const DefaultClaimBatchSize = 50

// GormFailedRecordRepository implements integration.FailedRecordRepository using GORM
type GormFailedRecordRepository struct {
	db *gorm.DB
}

// NewGormFailedRecordRepository creates a new GormFailedRecordRepository
func NewGormFailedRecordRepository(db *gorm.DB) *GormFailedRecordRepository {
	return &GormFailedRecordRepository{db: db}
}

// Enqueue inserts a FAILED record and writes the generated ID back to record
func (r *GormFailedRecordRepository) Enqueue(ctx context.Context, record *integration.FailedRecord) error {
	model := &models.FailedRecordModel{}
	model.FromDomain(record)
	model.ID = 0
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	record.ID = model.ID
	return nil
}

// ClaimBatch moves the oldest due FAILED records to RETRYING and returns them.
//
// Candidates are locked with FOR UPDATE SKIP LOCKED where the dialect supports
// it. The status change itself is a conditional update that only touches rows
// still in FAILED, tagged with a claim token unique to this call; the rows
// returned are exactly the rows carrying the token, so two concurrent claims
// can never hand out the same record even without row locks.
func (r *GormFailedRecordRepository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]integration.FailedRecord, error) {
	if limit <= 0 {
		limit = DefaultClaimBatchSize
	}
	token := uuid.NewString()

	var claimed []models.FailedRecordModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Model(&models.FailedRecordModel{}).
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("status = ? AND retryable = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
				integration.FailedRecordStatusFailed, true, now).
			Order("id ASC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		result := tx.Model(&models.FailedRecordModel{}).
			Where("id IN ? AND status = ?", ids, integration.FailedRecordStatusFailed).
			Updates(map[string]any{
				"status":       integration.FailedRecordStatusRetrying,
				"claim_token":  token,
				"claimed_from": integration.FailedRecordStatusFailed,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		return tx.Where("claim_token = ? AND status = ?", token, integration.FailedRecordStatusRetrying).
			Order("id ASC").
			Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}

	records := make([]integration.FailedRecord, len(claimed))
	for i := range claimed {
		records[i] = *claimed[i].ToDomain()
	}
	return records, nil
}

// ClaimOne moves a FAILED or IGNORED record to RETRYING for a manual resend.
// The previous status is kept in claimed_from so a release can restore it.
func (r *GormFailedRecordRepository) ClaimOne(ctx context.Context, id int64, now time.Time) (*integration.FailedRecord, error) {
	token := uuid.NewString()
	result := r.db.WithContext(ctx).
		Model(&models.FailedRecordModel{}).
		Where("id = ? AND status IN ?", id, []integration.FailedRecordStatus{
			integration.FailedRecordStatusFailed,
			integration.FailedRecordStatusIgnored,
		}).
		Updates(map[string]any{
			"claimed_from": gorm.Expr("status"),
			"status":       integration.FailedRecordStatusRetrying,
			"claim_token":  token,
			"updated_at":   now,
		})
	if result.Error != nil {
		return nil, result.Error
	}

	record, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 || record.ClaimToken != token {
		return nil, integration.ErrInvalidStateTransition.WithMessage(
			"failed record is " + string(record.Status) + " and cannot be resent")
	}
	return record, nil
}

// MarkResolved persists a successful retry of a record held under its claim token
func (r *GormFailedRecordRepository) MarkResolved(ctx context.Context, record *integration.FailedRecord) error {
	return r.finishClaim(ctx, record, map[string]any{
		"status":        record.Status,
		"retry_count":   record.RetryCount,
		"last_retry_at": record.LastRetryAt,
		"resolution":    record.Resolution,
		"resolved_at":   record.ResolvedAt,
		"resolved_by":   record.ResolvedBy,
		"claim_token":   "",
		"claimed_from":  "",
		"updated_at":    record.UpdatedAt,
	})
}

// MarkFailed persists a failed retry of a record held under its claim token
func (r *GormFailedRecordRepository) MarkFailed(ctx context.Context, record *integration.FailedRecord) error {
	return r.finishClaim(ctx, record, map[string]any{
		"status":        record.Status,
		"retry_count":   record.RetryCount,
		"last_retry_at": record.LastRetryAt,
		"next_retry_at": record.NextRetryAt,
		"error_message": record.ErrorMessage,
		"error_code":    record.ErrorCode,
		"retryable":     record.Retryable,
		"resolution":    record.Resolution,
		"resolved_at":   record.ResolvedAt,
		"resolved_by":   record.ResolvedBy,
		"claim_token":   "",
		"claimed_from":  "",
		"updated_at":    record.UpdatedAt,
	})
}

// finishClaim writes the outcome of a retry only while the row is still
// RETRYING under the caller's claim token
func (r *GormFailedRecordRepository) finishClaim(ctx context.Context, record *integration.FailedRecord, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.FailedRecordModel{}).
		Where("id = ? AND status = ? AND claim_token = ?",
			record.ID, integration.FailedRecordStatusRetrying, record.ClaimToken).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrInvalidStateTransition.WithMessage("failed record is no longer claimed by this pass")
	}
	record.ClaimToken = ""
	record.ClaimedFrom = ""
	return nil
}

// Transition persists an operator decision if the row is still in status from
func (r *GormFailedRecordRepository) Transition(ctx context.Context, record *integration.FailedRecord, from integration.FailedRecordStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.FailedRecordModel{}).
		Where("id = ? AND status = ?", record.ID, from).
		Updates(map[string]any{
			"status":      record.Status,
			"resolution":  record.Resolution,
			"resolved_at": record.ResolvedAt,
			"resolved_by": record.ResolvedBy,
			"updated_at":  record.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrInvalidStateTransition.WithMessage(
			"failed record is no longer " + string(from))
	}
	return nil
}

// Release returns RETRYING records to the status they were claimed from
// without touching their retry count
func (r *GormFailedRecordRepository) Release(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.FailedRecordModel{}).
		Where("id IN ? AND status = ?", ids, integration.FailedRecordStatusRetrying).
		Updates(unclaim(now)).Error
}

// unclaim puts a claimed row back where it was: IGNORED when an operator had
// ignored it before a resend, FAILED otherwise
func unclaim(now time.Time) map[string]any {
	return map[string]any{
		"status": gorm.Expr("CASE WHEN claimed_from = ? THEN ? ELSE ? END",
			integration.FailedRecordStatusIgnored,
			integration.FailedRecordStatusIgnored,
			integration.FailedRecordStatusFailed),
		"claim_token":  "",
		"claimed_from": "",
		"updated_at":   now,
	}
}

// FindByID finds a record by its ID
func (r *GormFailedRecordRepository) FindByID(ctx context.Context, id int64) (*integration.FailedRecord, error) {
	var model models.FailedRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrFailedRecordNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists records by ascending ID with the total matching count
func (r *GormFailedRecordRepository) FindAll(ctx context.Context, filter integration.FailedRecordFilter) ([]integration.FailedRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FailedRecordModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RecordType != nil {
		query = query.Where("record_type = ?", *filter.RecordType)
	}
	if filter.SyncRunID != nil {
		query = query.Where("sync_run_id = ?", *filter.SyncRunID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recordModels []models.FailedRecordModel
	if err := paginate(query, filter.Page, filter.PageSize).
		Order("id ASC").
		Find(&recordModels).Error; err != nil {
		return nil, 0, err
	}

	records := make([]integration.FailedRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records, total, nil
}

// CountByStatus returns the number of records per status; absent statuses are zero
func (r *GormFailedRecordRepository) CountByStatus(ctx context.Context) (map[integration.FailedRecordStatus]int64, error) {
	var rows []struct {
		Status integration.FailedRecordStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.FailedRecordModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[integration.FailedRecordStatus]int64{
		integration.FailedRecordStatusFailed:   0,
		integration.FailedRecordStatusRetrying: 0,
		integration.FailedRecordStatusResolved: 0,
		integration.FailedRecordStatusIgnored:  0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ResetStaleRetrying releases RETRYING records untouched since the cutoff
func (r *GormFailedRecordRepository) ResetStaleRetrying(ctx context.Context, updatedBefore time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FailedRecordModel{}).
		Where("status = ? AND updated_at < ?", integration.FailedRecordStatusRetrying, updatedBefore).
		Updates(unclaim(now))
	return result.RowsAffected, result.Error
}
