package models

import (
	"gorm.io/gorm"
)

// SmsDeliveryEvent is an append-only log of every inbound SMS provider
// callback. Rows are created unconditionally so no provider signal is ever
// silently lost; ContactAttemptID is null when no matching attempt exists.
type SmsDeliveryEvent struct {
	gorm.Model
	Provider    string `gorm:"not null;index" json:"provider"`
	ProviderRef string `gorm:"not null;index" json:"provider_ref"`

	RawStatus string `gorm:"not null" json:"raw_status"`
	Status    string `gorm:"index" json:"status"` // canonical: SUCCESS, FAILED, IN_PROGRESS, UNKNOWN

	ContactAttemptID *uint `gorm:"index" json:"contact_attempt_id,omitempty"`

	Payload string `gorm:"type:text" json:"payload"` // raw callback body for audit/debug
}
