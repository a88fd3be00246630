package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMappingRepository implements integration.MappingRepository using GORM
type GormMappingRepository struct {
	db *gorm.DB
}

// NewGormMappingRepository creates a new GormMappingRepository
func NewGormMappingRepository(db *gorm.DB) *GormMappingRepository {
	return &GormMappingRepository{db: db}
}

// FindActiveBySource finds the active mapping for key
func (r *GormMappingRepository) FindActiveBySource(ctx context.Context, key integration.MappingKey) (*integration.Mapping, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("mapping_type = ? AND source_value = ? AND is_active = ?",
			key.Type, integration.NormalizeSourceValue(key.SourceValue), true))
}

// FindBySource finds the mapping for key, active or not
func (r *GormMappingRepository) FindBySource(ctx context.Context, key integration.MappingKey) (*integration.Mapping, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("mapping_type = ? AND source_value = ?",
			key.Type, integration.NormalizeSourceValue(key.SourceValue)))
}

func (r *GormMappingRepository) findOne(query *gorm.DB) (*integration.Mapping, error) {
	var model models.MappingModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists mappings ordered by type and source value
func (r *GormMappingRepository) FindAll(ctx context.Context, filter integration.MappingFilter) ([]integration.Mapping, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.MappingModel{})
	if filter.MappingType != nil {
		query = query.Where("mapping_type = ?", *filter.MappingType)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToUpper(search) + "%"
		query = query.Where("UPPER(source_value) LIKE ? OR UPPER(target_value) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var mappingModels []models.MappingModel
	if err := paginate(query, filter.Page, filter.PageSize).
		Order("mapping_type ASC, source_value ASC").
		Find(&mappingModels).Error; err != nil {
		return nil, 0, err
	}

	mappings := make([]integration.Mapping, len(mappingModels))
	for i := range mappingModels {
		mappings[i] = *mappingModels[i].ToDomain()
	}
	return mappings, total, nil
}

// Save upserts on (mapping_type, source_value) and writes the row ID back to mapping
func (r *GormMappingRepository) Save(ctx context.Context, mapping *integration.Mapping) error {
	model := &models.MappingModel{}
	model.FromDomain(mapping)
	model.ID = 0
	model.SourceValue = integration.NormalizeSourceValue(model.SourceValue)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mapping_type"}, {Name: "source_value"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_value", "description", "is_active", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return err
	}

	// RETURNING is not reliable for the update branch across dialects
	stored, err := r.FindBySource(ctx, mapping.Key())
	if err != nil {
		return err
	}
	mapping.ID = stored.ID
	mapping.CreatedAt = stored.CreatedAt
	return nil
}
