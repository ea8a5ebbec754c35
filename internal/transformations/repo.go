package transformations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// Repository exposes persistence helpers for transformations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transformation *models.Transformation) error
	List(ctx context.Context, params pagination.Params) ([]models.Transformation, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transformation, error)
	Update(ctx context.Context, transformation *models.Transformation) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Transformation, error)
	CountRoutes(ctx context.Context, transformationID uuid.UUID) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a transformations repository bound to the provided
// database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, transformation *models.Transformation) error {
	return r.db.WithContext(ctx).Create(transformation).Error
}

func (r *repositoryImpl) List(ctx context.Context, params pagination.Params) ([]models.Transformation, int64, error) {
	params = pagination.Normalize(params)
	query := r.db.WithContext(ctx).Model(&models.Transformation{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var transformations []models.Transformation
	if err := query.Order("name ASC").Limit(params.Limit).Offset(params.Offset()).Find(&transformations).Error; err != nil {
		return nil, 0, err
	}
	return transformations, total, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	var transformation models.Transformation
	if err := r.db.WithContext(ctx).First(&transformation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transformation, nil
}

func (r *repositoryImpl) Update(ctx context.Context, transformation *models.Transformation) error {
	transformation.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(transformation).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.Transformation{}, "id = ?", id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Transformation, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transformation{}).
		Where("id = ?", id).
		Updates(map[string]any{"enabled": enabled, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *repositoryImpl) CountRoutes(ctx context.Context, transformationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Route{}).
		Where("transformation_id = ?", transformationID).
		Count(&count).Error
	return count, err
}
