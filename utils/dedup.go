package utils

import (
	"strings"

	"github.com/sirupsen/logrus"

	"leadflow/models"
)

// IntakeStore is the persistence surface the deduper needs.
type IntakeStore interface {
	// FindLeadsByEmailOrPhone returns existing leads matching any of the
	// candidate emails (lowercased) or phones.
	FindLeadsByEmailOrPhone(emails, phones []string) ([]models.Lead, error)
	// CreateLeads inserts all leads in a single transaction, all-or-nothing.
	CreateLeads(leads []*models.Lead) error
	// BackfillWebhookIDs sets webhook_id on the given leads in a single
	// transaction, guarded so an existing non-empty value is never overwritten.
	BackfillWebhookIDs(ids map[uint]string) error
}

// LeadInput is one candidate lead record for bulk intake.
type LeadInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	Source    string `json:"source"`
	WebhookID string `json:"webhook_id"`
}

// IntakeResult summarizes one bulk intake run. Created + Deduplicated always
// equals the number of inputs; Errors only counts genuine write failures.
type IntakeResult struct {
	Created      int `json:"created"`
	Deduplicated int `json:"deduplicated"`
	Errors       int `json:"errors"`
}

// LeadDeduper resolves incoming lead records against existing leads by email
// or phone before insertion.
type LeadDeduper struct {
	store  IntakeStore
	logger *logrus.Logger
}

func NewLeadDeduper(store IntakeStore, logger *logrus.Logger) *LeadDeduper {
	return &LeadDeduper{
		store:  store,
		logger: logger,
	}
}

// BulkIntake dedups and inserts a batch of candidate leads. It returns the
// result counts and the ordered ids of newly created leads. The returned
// error covers only the existing-lead lookup; write failures are counted in
// the result instead so a partial batch is still reported.
func (d *LeadDeduper) BulkIntake(inputs []LeadInput) (IntakeResult, []uint, error) {
	var result IntakeResult
	if len(inputs) == 0 {
		return result, nil, nil
	}

	emails := make([]string, 0, len(inputs))
	phones := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if email := normalizeEmail(in.Email); email != "" {
			emails = append(emails, email)
		}
		if phone := strings.TrimSpace(in.Phone); phone != "" {
			phones = append(phones, phone)
		}
	}

	// No contactable identity anywhere in the batch: nothing to dedup
	// against, skip the lookup entirely and treat every input as new.
	var existing []models.Lead
	if len(emails) > 0 || len(phones) > 0 {
		var err error
		existing, err = d.store.FindLeadsByEmailOrPhone(emails, phones)
		if err != nil {
			return result, nil, err
		}
	}

	byEmail := make(map[string]*models.Lead, len(existing))
	byPhone := make(map[string]*models.Lead, len(existing))
	for i := range existing {
		lead := &existing[i]
		if email := normalizeEmail(lead.Email); email != "" {
			if _, ok := byEmail[email]; !ok {
				byEmail[email] = lead
			}
		}
		if phone := strings.TrimSpace(lead.Phone); phone != "" {
			if _, ok := byPhone[phone]; !ok {
				byPhone[phone] = lead
			}
		}
	}

	var toCreate []*models.Lead
	backfill := make(map[uint]string)
	for _, in := range inputs {
		// Email match takes priority over phone when both hit different leads.
		match := byEmail[normalizeEmail(in.Email)]
		if match == nil && strings.TrimSpace(in.Phone) != "" {
			match = byPhone[strings.TrimSpace(in.Phone)]
		}

		if match != nil {
			result.Deduplicated++
			if in.WebhookID != "" && match.WebhookID == "" {
				if _, ok := backfill[match.ID]; !ok {
					backfill[match.ID] = in.WebhookID
				}
			}
			continue
		}

		toCreate = append(toCreate, &models.Lead{
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Email:     normalizeEmail(in.Email),
			Phone:     strings.TrimSpace(in.Phone),
			Status:    models.LeadStatusNew,
			Source:    in.Source,
			WebhookID: in.WebhookID,
		})
	}

	// Zero-cost no-op path: nothing to create and nothing to backfill means
	// no write transaction at all.
	var createdIDs []uint
	if len(toCreate) > 0 {
		if err := d.store.CreateLeads(toCreate); err != nil {
			d.logger.WithError(err).WithField("count", len(toCreate)).Error("bulk lead insert failed")
			result.Errors += len(toCreate)
		} else {
			result.Created = len(toCreate)
			createdIDs = make([]uint, 0, len(toCreate))
			for _, lead := range toCreate {
				createdIDs = append(createdIDs, lead.ID)
			}
		}
	}

	if len(backfill) > 0 {
		if err := d.store.BackfillWebhookIDs(backfill); err != nil {
			// The inputs involved are already counted as deduplicated; the
			// backfill is best-effort and retried on the next intake carrying
			// the same webhook id.
			d.logger.WithError(err).Warn("webhook id backfill failed")
		}
	}

	return result, createdIDs, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
