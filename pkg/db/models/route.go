package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Route binds an event-type filter plus optional condition to a
// transformation and a destination. Counters are advisory.
type Route struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name             string            `gorm:"column:name;not null;unique" json:"name"`
	Description      *string           `gorm:"column:description" json:"description,omitempty"`
	EventTypes       pq.StringArray    `gorm:"column:event_types;type:text[];not null;default:ARRAY['*']::text[]" json:"eventTypes"`
	TransformationID uuid.UUID         `gorm:"column:transformation_id;type:uuid;not null" json:"transformationId"`
	DestinationID    uuid.UUID         `gorm:"column:destination_id;type:uuid;not null" json:"destinationId"`
	Condition        datatypes.JSONMap `gorm:"column:condition;type:jsonb" json:"condition,omitempty"`
	Priority         int               `gorm:"column:priority;not null" json:"priority"`
	Enabled          bool              `gorm:"column:enabled;not null" json:"enabled"`
	LastUsed         *time.Time        `gorm:"column:last_used;type:timestamptz" json:"lastUsed,omitempty"`
	UseCount         int64             `gorm:"column:use_count;not null;default:0" json:"useCount"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	Transformation *Transformation `gorm:"foreignKey:TransformationID" json:"transformation,omitempty"`
	Destination    *Destination    `gorm:"foreignKey:DestinationID" json:"destinationRef,omitempty"`
}
