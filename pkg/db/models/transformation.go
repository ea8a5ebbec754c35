package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/eventgatehq/eventgate-backend/pkg/enums"
)

// Transformation is a persisted payload-shaping rule. Config shape is
// validated per Type before rows are written.
type Transformation struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string                   `gorm:"column:name;not null;unique" json:"name"`
	Description *string                  `gorm:"column:description" json:"description,omitempty"`
	Type        enums.TransformationType `gorm:"column:type;type:text;not null" json:"type"`
	Config      datatypes.JSONMap        `gorm:"column:config;type:jsonb;not null;default:'{}'" json:"config"`
	Enabled     bool                     `gorm:"column:enabled;not null" json:"enabled"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
