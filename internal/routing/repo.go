package routing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
)

// Repository loads the routable set and applies the advisory counters.
type Repository interface {
	LoadActive(ctx context.Context) ([]models.Route, error)
	MarkRouteUsed(ctx context.Context, routeID uuid.UUID, usedAt time.Time) error
	RecordDeliveryOutcome(ctx context.Context, destinationID uuid.UUID, success bool, at time.Time, deliveryError *string) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a routing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// LoadActive returns enabled routes whose transformation and destination are
// both enabled, hydrated with those rows, in delivery order.
func (r *repositoryImpl) LoadActive(ctx context.Context) ([]models.Route, error) {
	var routes []models.Route
	err := r.db.WithContext(ctx).
		Joins("JOIN transformations t ON t.id = routes.transformation_id AND t.enabled = ?", true).
		Joins("JOIN destinations d ON d.id = routes.destination_id AND d.enabled = ?", true).
		Where("routes.enabled = ?", true).
		Order("routes.priority ASC, routes.created_at DESC").
		Preload("Transformation").
		Preload("Destination").
		Find(&routes).Error
	if err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *repositoryImpl) MarkRouteUsed(ctx context.Context, routeID uuid.UUID, usedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Route{}).
		Where("id = ?", routeID).
		Updates(map[string]any{
			"use_count": gorm.Expr("use_count + 1"),
			"last_used": usedAt,
		}).Error
}

func (r *repositoryImpl) RecordDeliveryOutcome(ctx context.Context, destinationID uuid.UUID, success bool, at time.Time, deliveryError *string) error {
	updates := map[string]any{}
	if success {
		updates["success_count"] = gorm.Expr("success_count + 1")
		updates["last_sent"] = at
		updates["last_error"] = nil
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
		updates["last_error"] = deliveryError
	}
	return r.db.WithContext(ctx).
		Model(&models.Destination{}).
		Where("id = ?", destinationID).
		Updates(updates).Error
}
