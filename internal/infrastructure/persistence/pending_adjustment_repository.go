package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPendingAdjustmentRepository implements integration.PendingAdjustmentRepository using GORM
type GormPendingAdjustmentRepository struct {
	db *gorm.DB
}

// NewGormPendingAdjustmentRepository creates a new GormPendingAdjustmentRepository
func NewGormPendingAdjustmentRepository(db *gorm.DB) *GormPendingAdjustmentRepository {
	return &GormPendingAdjustmentRepository{db: db}
}

// Create inserts a PENDING adjustment and writes the generated ID back to adj
func (r *GormPendingAdjustmentRepository) Create(ctx context.Context, adj *integration.PendingAdjustment) error {
	model := &models.PendingAdjustmentModel{}
	model.FromDomain(adj)
	model.ID = 0
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	adj.ID = model.ID
	return nil
}

// FindByID finds an adjustment by its ID
func (r *GormPendingAdjustmentRepository) FindByID(ctx context.Context, id int64) (*integration.PendingAdjustment, error) {
	var model models.PendingAdjustmentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrPendingAdjustmentMissing
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalRef returns the adjustment created for a source movement, or nil
func (r *GormPendingAdjustmentRepository) FindByExternalRef(ctx context.Context, ref string) (*integration.PendingAdjustment, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, nil
	}
	var adjModels []models.PendingAdjustmentModel
	if err := r.db.WithContext(ctx).
		Where("external_ref = ?", ref).
		Order("id ASC").
		Limit(1).
		Find(&adjModels).Error; err != nil {
		return nil, err
	}
	if len(adjModels) == 0 {
		return nil, nil
	}
	return adjModels[0].ToDomain(), nil
}

// FindAll lists adjustments newest first with the total matching count
func (r *GormPendingAdjustmentRepository) FindAll(ctx context.Context, filter integration.PendingAdjustmentFilter) ([]integration.PendingAdjustment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PendingAdjustmentModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if sku := strings.TrimSpace(filter.SKU); sku != "" {
		query = query.Where("sku = ?", sku)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var adjModels []models.PendingAdjustmentModel
	if err := paginate(query, filter.Page, filter.PageSize).
		Order("created_at DESC, id DESC").
		Find(&adjModels).Error; err != nil {
		return nil, 0, err
	}

	adjustments := make([]integration.PendingAdjustment, len(adjModels))
	for i := range adjModels {
		adjustments[i] = *adjModels[i].ToDomain()
	}
	return adjustments, total, nil
}

// Transition persists an approval or rejection only if the row is still PENDING
func (r *GormPendingAdjustmentRepository) Transition(ctx context.Context, adj *integration.PendingAdjustment) error {
	result := r.db.WithContext(ctx).
		Model(&models.PendingAdjustmentModel{}).
		Where("id = ? AND status = ?", adj.ID, integration.PendingAdjustmentStatusPending).
		Updates(map[string]any{
			"status":          adj.Status,
			"approved_by":     adj.ApprovedBy,
			"approved_at":     adj.ApprovedAt,
			"rejected_by":     adj.RejectedBy,
			"rejected_reason": adj.RejectedReason,
			"rejected_at":     adj.RejectedAt,
			"updated_at":      adj.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrInvalidStateTransition.WithMessage("pending adjustment has already been decided")
	}
	return nil
}
