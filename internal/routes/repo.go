package routes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// Repository exposes persistence helpers for routes. The referenced
// transformation and destination lookups live here too, so the service can
// enforce that routes only bind live rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, route *models.Route) error
	List(ctx context.Context, params pagination.Params) ([]models.Route, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Route, error)
	Update(ctx context.Context, route *models.Route) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Route, error)
	FindTransformation(ctx context.Context, id uuid.UUID) (*models.Transformation, error)
	FindDestination(ctx context.Context, id uuid.UUID) (*models.Destination, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a routes repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, route *models.Route) error {
	return r.db.WithContext(ctx).Create(route).Error
}

func (r *repositoryImpl) List(ctx context.Context, params pagination.Params) ([]models.Route, int64, error) {
	params = pagination.Normalize(params)
	query := r.db.WithContext(ctx).Model(&models.Route{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var routes []models.Route
	err := query.
		Preload("Transformation").
		Preload("Destination").
		Order("priority ASC, created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&routes).Error
	if err != nil {
		return nil, 0, err
	}
	return routes, total, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	var route models.Route
	err := r.db.WithContext(ctx).
		Preload("Transformation").
		Preload("Destination").
		First(&route, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *repositoryImpl) Update(ctx context.Context, route *models.Route) error {
	route.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Omit("Transformation", "Destination").Save(route).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.Route{}, "id = ?", id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Route, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Route{}).
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

func (r *repositoryImpl) FindTransformation(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	var transformation models.Transformation
	if err := r.db.WithContext(ctx).First(&transformation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transformation, nil
}

func (r *repositoryImpl) FindDestination(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	var destination models.Destination
	if err := r.db.WithContext(ctx).First(&destination, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &destination, nil
}
