package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProviderEvent is the idempotency record for inbound provider webhooks.
// At most one row exists per ProviderEventID.
type ProviderEvent struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProviderEventID   string            `gorm:"column:provider_event_id;not null;unique" json:"providerEventId"`
	ProviderType      string            `gorm:"column:provider_type;not null" json:"providerType"`
	EventType         string            `gorm:"column:event_type;not null" json:"eventType"`
	ProviderTimestamp *time.Time        `gorm:"column:provider_timestamp;type:timestamptz" json:"providerEventTimestamp,omitempty"`
	ObjectID          *string           `gorm:"column:object_id" json:"objectId,omitempty"`
	ObjectType        *string           `gorm:"column:object_type" json:"objectType,omitempty"`
	Data              datatypes.JSON    `gorm:"column:data;type:jsonb;not null" json:"data"`
	Processed         bool              `gorm:"column:processed;not null;default:false" json:"processed"`
	ProcessedAt       *time.Time        `gorm:"column:processed_at;type:timestamptz" json:"processedAt,omitempty"`
	ProcessingErrors  datatypes.JSONMap `gorm:"column:processing_errors;type:jsonb" json:"processingErrors,omitempty"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
