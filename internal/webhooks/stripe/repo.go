package stripewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
)

// Repository exposes persistence helpers for inbound provider events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByProviderEventID(ctx context.Context, providerEventID string) (*models.ProviderEvent, error)
	Create(ctx context.Context, event *models.ProviderEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordError(ctx context.Context, id uuid.UUID, message string, at time.Time) error
	ListUnprocessed(ctx context.Context, limit int) ([]models.ProviderEvent, error)
	Aggregate(ctx context.Context) (*Totals, error)
}

// Totals aggregates the provider event table.
type Totals struct {
	Received    int64            `json:"received"`
	Processed   int64            `json:"processed"`
	Unprocessed int64            `json:"unprocessed"`
	ByType      map[string]int64 `json:"byType"`
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a provider event repository bound to the provided
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

func (r *repositoryImpl) FindByProviderEventID(ctx context.Context, providerEventID string) (*models.ProviderEvent, error) {
	var event models.ProviderEvent
	err := r.db.WithContext(ctx).
		First(&event, "provider_event_id = ?", providerEventID).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repositoryImpl) Create(ctx context.Context, event *models.ProviderEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repositoryImpl) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ProviderEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed": true, "processed_at": at}).Error
}

func (r *repositoryImpl) RecordError(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	errorRecord := datatypes.JSONMap{
		"message":   message,
		"timestamp": at.Format(time.RFC3339),
	}
	return r.db.WithContext(ctx).
		Model(&models.ProviderEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed": false, "processing_errors": errorRecord}).Error
}

func (r *repositoryImpl) ListUnprocessed(ctx context.Context, limit int) ([]models.ProviderEvent, error) {
	var events []models.ProviderEvent
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repositoryImpl) Aggregate(ctx context.Context) (*Totals, error) {
	totals := &Totals{ByType: map[string]int64{}}

	row := r.db.WithContext(ctx).
		Model(&models.ProviderEvent{}).
		Select("COUNT(*) AS received, SUM(CASE WHEN processed THEN 1 ELSE 0 END) AS processed").
		Row()
	var processed *int64
	if err := row.Scan(&totals.Received, &processed); err != nil {
		return nil, err
	}
	if processed != nil {
		totals.Processed = *processed
	}
	totals.Unprocessed = totals.Received - totals.Processed

	var byType []struct {
		EventType string
		Count     int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.ProviderEvent{}).
		Select("event_type, COUNT(*) AS count").
		Group("event_type").
		Scan(&byType).Error
	if err != nil {
		return nil, err
	}
	for _, entry := range byType {
		totals.ByType[entry.EventType] = entry.Count
	}
	return totals, nil
}
