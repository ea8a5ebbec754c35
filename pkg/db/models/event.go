package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is the canonical application event. Immutable once persisted.
type Event struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventName  string            `gorm:"column:event_name;not null" json:"eventName"`
	Timestamp  time.Time         `gorm:"column:timestamp;type:timestamptz;not null;default:now()" json:"timestamp"`
	Properties datatypes.JSONMap `gorm:"column:properties;type:jsonb;not null;default:'{}'" json:"properties"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
