package events

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

// Repository exposes persistence helpers for events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.Event) error
	List(ctx context.Context, filter ListFilter) ([]models.Event, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListByUser(ctx context.Context, userID string, params pagination.Params) ([]models.Event, int64, error)
	Search(ctx context.Context, key, value string, params pagination.Params) ([]models.Event, int64, error)
}

// ListFilter narrows event listings. Zero fields are ignored.
type ListFilter struct {
	pagination.Params
	EventName string
	UserID    string
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an events repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repositoryImpl) List(ctx context.Context, filter ListFilter) ([]models.Event, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Event{})
	if filter.EventName != "" {
		query = query.Where("event_name = ?", filter.EventName)
	}
	if filter.UserID != "" {
		query = query.Where(datatypes.JSONQuery("properties").Equals(filter.UserID, "userId"))
	}
	return r.page(query, filter.Params)
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repositoryImpl) ListByUser(ctx context.Context, userID string, params pagination.Params) ([]models.Event, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where(datatypes.JSONQuery("properties").Equals(userID, "userId"))
	return r.page(query, params)
}

// Search matches one dotted property key against a value, both taken from
// query parameters. The comparison is textual, matching jsonb text
// extraction.
func (r *repositoryImpl) Search(ctx context.Context, key, value string, params pagination.Params) ([]models.Event, int64, error) {
	keys := strings.Split(key, ".")
	query := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where(datatypes.JSONQuery("properties").Equals(value, keys...))
	return r.page(query, params)
}

func (r *repositoryImpl) page(query *gorm.DB, params pagination.Params) ([]models.Event, int64, error) {
	params = pagination.Normalize(params)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []models.Event
	if err := query.Order("timestamp DESC").Limit(params.Limit).Offset(params.Offset()).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
