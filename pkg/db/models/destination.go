package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/eventgatehq/eventgate-backend/pkg/enums"
)

// Destination is a persisted delivery endpoint. SecretKeyEncrypted only
// ever holds the iv:tag:ciphertext envelope, never plaintext, and is
// excluded from every serialized view.
type Destination struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name               string                `gorm:"column:name;not null;unique" json:"name"`
	Type               enums.DestinationType `gorm:"column:type;type:text;not null;default:'webhook'" json:"type"`
	URL                string                `gorm:"column:url;not null" json:"url"`
	Method             string                `gorm:"column:method;not null;default:'POST'" json:"method"`
	EventTypes         pq.StringArray        `gorm:"column:event_types;type:text[];not null;default:ARRAY['*']::text[]" json:"eventTypes"`
	Config             datatypes.JSONMap     `gorm:"column:config;type:jsonb;not null;default:'{}'" json:"config"`
	SecretKeyEncrypted *string               `gorm:"column:secret_key_encrypted" json:"-"`
	Enabled            bool                  `gorm:"column:enabled;not null" json:"enabled"`
	TimeoutMS          int                   `gorm:"column:timeout_ms;not null;default:5000" json:"timeout"`
	RetryStrategy      datatypes.JSONMap     `gorm:"column:retry_strategy;type:jsonb" json:"retryStrategy,omitempty"`
	SuccessCount       int64                 `gorm:"column:success_count;not null;default:0" json:"successCount"`
	FailureCount       int64                 `gorm:"column:failure_count;not null;default:0" json:"failureCount"`
	LastSent           *time.Time            `gorm:"column:last_sent;type:timestamptz" json:"lastSent,omitempty"`
	LastError          *string               `gorm:"column:last_error" json:"lastError,omitempty"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// HasSecret reports whether an envelope is stored for this destination.
func (d *Destination) HasSecret() bool {
	return d.SecretKeyEncrypted != nil && *d.SecretKeyEncrypted != ""
}
