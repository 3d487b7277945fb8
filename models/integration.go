package models

import (
	"time"

	"gorm.io/gorm"
)

// IntegrationConfig holds one outbound provider configuration, keyed by
// provider name. At most one provider per channel type is treated as primary;
// inactive providers are skipped by the router, which falls back to the
// channel's default provider instead of failing the attempt.
type IntegrationConfig struct {
	gorm.Model
	Provider string  `gorm:"not null;uniqueIndex" json:"provider"`
	Type     Channel `gorm:"not null;index" json:"type"`

	IsActive  bool `gorm:"default:true" json:"is_active"`
	IsPrimary bool `gorm:"default:false" json:"is_primary"`

	// Opaque provider credential/config blob (API tokens, sender ids, ...)
	Settings map[string]string `gorm:"type:jsonb;serializer:json" json:"settings"`

	LastUsedAt *time.Time `json:"last_used_at"`
}
