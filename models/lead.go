package models

import (
	"gorm.io/gorm"
)

// LeadStatus is the lifecycle state of a lead
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "NEW"
	LeadStatusContacted    LeadStatus = "CONTACTED"
	LeadStatusInProgress   LeadStatus = "IN_PROGRESS"
	LeadStatusConverted    LeadStatus = "CONVERTED"
	LeadStatusLost         LeadStatus = "LOST"
	LeadStatusDoNotContact LeadStatus = "DO_NOT_CONTACT"
	LeadStatusRejected     LeadStatus = "REJECTED"
)

// Lead represents a single contact/lead.
//
// Email and phone are both optional (at least one is recommended); uniqueness
// is soft and enforced by the intake dedup logic, not by a DB constraint,
// because either identity field may be empty.
type Lead struct {
	gorm.Model
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `gorm:"index" json:"email"`
	Phone     string `gorm:"index" json:"phone"`

	Status LeadStatus `gorm:"default:'NEW';index" json:"status"`
	Source string     `json:"source"` // manual, csv, api, webhook, etc.
	Score  int        `gorm:"default:0" json:"score"`

	// WebhookID links the lead back to the external form/webhook submission
	// that produced it. Backfilled on dedup, never overwritten once set.
	WebhookID string `gorm:"index" json:"webhook_id"`

	Meta map[string]string `gorm:"type:jsonb;serializer:json" json:"meta"`

	// Relations
	Notes    []LeadNote       `gorm:"foreignKey:LeadID" json:"notes,omitempty"`
	Attempts []ContactAttempt `gorm:"foreignKey:LeadID" json:"attempts,omitempty"`
}

// LeadNote is a free-form annotation on a lead (suppression reasons, etc.)
type LeadNote struct {
	gorm.Model
	LeadID uint   `gorm:"not null;index" json:"lead_id"`
	Body   string `gorm:"type:text" json:"body"`
}

// HasIdentity reports whether the lead carries any contactable identity
// usable as a dedup predicate.
func (l *Lead) HasIdentity() bool {
	return l.Email != "" || l.Phone != ""
}
