package models

import (
	"time"

	"gorm.io/gorm"
)

// SequenceStepExecution is a scheduled future send for a lead. Sequence
// authoring lives elsewhere; this service only needs enough of the record to
// cancel pending executions when a lead is suppressed.
type SequenceStepExecution struct {
	gorm.Model
	LeadID     uint  `gorm:"not null;index" json:"lead_id"`
	CampaignID *uint `gorm:"index" json:"campaign_id,omitempty"`

	StepNumber int       `json:"step_number"`
	Status     string    `gorm:"default:'scheduled';index" json:"status"` // scheduled, completed, canceled
	RunAt      time.Time `json:"run_at"`
}

const (
	StepStatusScheduled = "scheduled"
	StepStatusCompleted = "completed"
	StepStatusCanceled  = "canceled"
)
