package destinations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// Repository exposes persistence helpers for destinations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, destination *models.Destination) error
	List(ctx context.Context, params pagination.Params) ([]models.Destination, int64, error)
	ListAll(ctx context.Context) ([]models.Destination, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Destination, error)
	FindByName(ctx context.Context, name string) (*models.Destination, error)
	Update(ctx context.Context, destination *models.Destination) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Destination, error)
	Totals(ctx context.Context) (*Totals, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a destinations repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// Totals aggregates delivery outcomes across the whole table.
type Totals struct {
	Destinations int64 `json:"destinations"`
	Enabled      int64 `json:"enabled"`
	Deliveries   int64 `json:"deliveries"`
	Failures     int64 `json:"failures"`
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, destination *models.Destination) error {
	return r.db.WithContext(ctx).Create(destination).Error
}

func (r *repositoryImpl) List(ctx context.Context, params pagination.Params) ([]models.Destination, int64, error) {
	params = pagination.Normalize(params)
	query := r.db.WithContext(ctx).Model(&models.Destination{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var destinations []models.Destination
	if err := query.Order("name ASC").Limit(params.Limit).Offset(params.Offset()).Find(&destinations).Error; err != nil {
		return nil, 0, err
	}
	return destinations, total, nil
}

func (r *repositoryImpl) ListAll(ctx context.Context) ([]models.Destination, error) {
	var destinations []models.Destination
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&destinations).Error; err != nil {
		return nil, err
	}
	return destinations, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	var destination models.Destination
	if err := r.db.WithContext(ctx).First(&destination, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &destination, nil
}

func (r *repositoryImpl) FindByName(ctx context.Context, name string) (*models.Destination, error) {
	var destination models.Destination
	if err := r.db.WithContext(ctx).First(&destination, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &destination, nil
}

func (r *repositoryImpl) Update(ctx context.Context, destination *models.Destination) error {
	destination.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(destination).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.Destination{}, "id = ?", id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Destination, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Destination{}).
		Where("id = ?", id).
		UpdateColumn("enabled", enabled)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *repositoryImpl) Totals(ctx context.Context) (*Totals, error) {
	var totals Totals
	err := r.db.WithContext(ctx).
		Model(&models.Destination{}).
		Select(`COUNT(*) AS destinations,
SUM(CASE WHEN enabled THEN 1 ELSE 0 END) AS enabled,
COALESCE(SUM(success_count), 0) AS deliveries,
COALESCE(SUM(failure_count), 0) AS failures`).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
