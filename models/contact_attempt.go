package models

import (
	"time"

	"gorm.io/gorm"
)

// Channel identifies the outreach channel of a contact attempt
type Channel string

const (
	ChannelCall  Channel = "CALL"
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// AttemptStatus is the lifecycle state of a contact attempt
type AttemptStatus string

const (
	AttemptStatusPending    AttemptStatus = "PENDING"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSuccess    AttemptStatus = "SUCCESS"
	AttemptStatusFailed     AttemptStatus = "FAILED"
	AttemptStatusNoAnswer   AttemptStatus = "NO_ANSWER"
)

// IsTerminal reports whether the status is a final outcome.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusSuccess || s == AttemptStatusFailed || s == AttemptStatusNoAnswer
}

// EventSet is the idempotency ledger of webhook event types already applied
// to an attempt. Serialized as part of the result blob.
type EventSet []string

// Contains reports whether the event type was already applied.
func (s EventSet) Contains(event string) bool {
	for _, e := range s {
		if e == event {
			return true
		}
	}
	return false
}

// Add appends the event type if it is not already present.
func (s EventSet) Add(event string) EventSet {
	if s.Contains(event) {
		return s
	}
	return append(s, event)
}

// AttemptResult is the opaque result blob on a contact attempt. It carries
// human-readable notes alongside the reconciliation idempotency ledger.
type AttemptResult struct {
	Notes           string   `json:"notes,omitempty"`
	Error           string   `json:"error,omitempty"`
	Variant         string   `json:"variant,omitempty"` // A/B assignment tag
	LastEvent       string   `json:"last_event,omitempty"`
	ProcessedEvents EventSet `json:"_processed_events,omitempty"`
}

// ContactAttempt is one dispatch of one message to one lead on one channel.
//
// ProviderRef is the join key inbound webhooks use to locate the attempt. For
// synchronous sends it is stored before any callback can reference it; for
// batched sends it is unknown until the batch completes and the per-item
// result supplies it.
type ContactAttempt struct {
	gorm.Model
	LeadID     uint  `gorm:"not null;index" json:"lead_id"`
	CampaignID *uint `gorm:"index" json:"campaign_id,omitempty"`

	Channel     Channel       `gorm:"not null" json:"channel"`
	Provider    string        `json:"provider"`
	ProviderRef string        `gorm:"index" json:"provider_ref"`
	Status      AttemptStatus `gorm:"default:'PENDING';index" json:"status"`

	Result AttemptResult `gorm:"type:jsonb;serializer:json" json:"result"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Cost        *float64   `json:"cost,omitempty"`
	Duration    *int       `json:"duration,omitempty"` // seconds, call channel only

	// Relations
	Lead     Lead      `json:"-"`
	Campaign *Campaign `json:"-"`
}
