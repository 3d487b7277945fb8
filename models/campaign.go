package models

import (
	"gorm.io/gorm"
)

// Campaign holds the default script used when routing a contact for a
// campaign/channel. Authoring workflows live outside this service.
type Campaign struct {
	gorm.Model
	Name string `gorm:"not null" json:"name"`

	// Default email script
	Subject   string `json:"subject"`
	HTMLBody  string `gorm:"type:text" json:"html_body"`
	TextBody  string `gorm:"type:text" json:"text_body"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`

	// Default SMS script
	SmsBody string `gorm:"type:text" json:"sms_body"`

	Status string `gorm:"default:'active'" json:"status"` // active, paused, archived

	// BatchSend routes EMAIL dispatches through the batch dispatcher instead
	// of the provider's single-send endpoint.
	BatchSend bool `gorm:"default:false" json:"batch_send"`

	// Relations
	Tests []ABTest `gorm:"foreignKey:CampaignID" json:"tests,omitempty"`
}

// ABVariant is one script variant of an A/B test.
type ABVariant struct {
	Name     string `json:"name"`
	Subject  string `json:"subject,omitempty"`
	HTMLBody string `json:"html_body,omitempty"`
	TextBody string `json:"text_body,omitempty"`
	SmsBody  string `json:"sms_body,omitempty"`
}

// ABTest is an active script experiment for a campaign+channel. The router
// records the assignment as a tag on the attempt for outcome attribution.
type ABTest struct {
	gorm.Model
	CampaignID uint    `gorm:"not null;index" json:"campaign_id"`
	Channel    Channel `gorm:"not null;index" json:"channel"`

	Name     string `gorm:"not null" json:"name"`
	IsActive bool   `gorm:"default:false;index" json:"is_active"`

	Variants []ABVariant `gorm:"type:jsonb;serializer:json" json:"variants"`
}
