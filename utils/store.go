package utils

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"leadflow/models"
)

// Store is the GORM-backed implementation of the pipeline's persistence
// surfaces (IntakeStore, RouterStore, BatchAttemptStore, ReconcileStore).
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ---- IntakeStore ----

func (s *Store) FindLeadsByEmailOrPhone(emails, phones []string) ([]models.Lead, error) {
	var leads []models.Lead
	query := s.db
	switch {
	case len(emails) > 0 && len(phones) > 0:
		query = query.Where("lower(email) IN ? OR phone IN ?", emails, phones)
	case len(emails) > 0:
		query = query.Where("lower(email) IN ?", emails)
	case len(phones) > 0:
		query = query.Where("phone IN ?", phones)
	default:
		return nil, nil
	}
	if err := query.Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

func (s *Store) CreateLeads(leads []*models.Lead) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&leads).Error
	})
}

func (s *Store) BackfillWebhookIDs(ids map[uint]string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for leadID, webhookID := range ids {
			err := tx.Model(&models.Lead{}).
				Where("id = ? AND (webhook_id IS NULL OR webhook_id = '')", leadID).
				Update("webhook_id", webhookID).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ---- RouterStore ----

func (s *Store) CountAttemptsSince(leadID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.ContactAttempt{}).
		Where("lead_id = ? AND started_at >= ?", leadID, since).
		Count(&count).Error
	return count, err
}

func (s *Store) PrimaryIntegration(channel models.Channel) (*models.IntegrationConfig, error) {
	var integ models.IntegrationConfig
	err := s.db.Where("type = ? AND is_primary = ?", channel, true).First(&integ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integ, nil
}

func (s *Store) CreateAttempt(attempt *models.ContactAttempt) error {
	return s.db.Create(attempt).Error
}

func (s *Store) UpdateAttempt(attempt *models.ContactAttempt) error {
	return s.db.Save(attempt).Error
}

// ---- BatchAttemptStore ----

func (s *Store) MarkAttemptSent(attemptID uint, provider, providerRef string) error {
	return s.db.Model(&models.ContactAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"status":       models.AttemptStatusInProgress,
			"provider":     provider,
			"provider_ref": providerRef,
		}).Error
}

func (s *Store) MarkAttemptFailed(attemptID uint, provider, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var attempt models.ContactAttempt
		if err := tx.First(&attempt, attemptID).Error; err != nil {
			return err
		}
		attempt.Provider = provider
		attempt.Status = models.AttemptStatusFailed
		attempt.Result.Error = reason
		attempt.CompletedAt = Pointer(time.Now())
		return tx.Save(&attempt).Error
	})
}

// ---- ReconcileStore ----

func (s *Store) AttemptByProviderRef(ref string) (*models.ContactAttempt, error) {
	var attempt models.ContactAttempt
	err := s.db.Where("provider_ref = ?", ref).First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// UpdateAttemptGuarded is an optimistic update keyed on updated_at: the write
// lands only if nobody touched the row since it was read.
func (s *Store) UpdateAttemptGuarded(attempt *models.ContactAttempt, seen time.Time) (bool, error) {
	res := s.db.Model(attempt).
		Where("updated_at = ?", seen).
		Select("status", "result", "completed_at").
		Updates(attempt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpdateLeadStatus(leadID uint, status models.LeadStatus) error {
	return s.db.Model(&models.Lead{}).
		Where("id = ?", leadID).
		Update("status", status).Error
}

func (s *Store) AppendLeadNote(leadID uint, body string) error {
	return s.db.Create(&models.LeadNote{LeadID: leadID, Body: body}).Error
}

// RecordSmsEvent appends to the SMS delivery log. The log is append-only;
// every well-formed callback lands here whether or not an attempt matched.
func (s *Store) RecordSmsEvent(event *models.SmsDeliveryEvent) error {
	return s.db.Create(event).Error
}

func (s *Store) CancelPendingSteps(leadID uint) (int64, error) {
	res := s.db.Model(&models.SequenceStepExecution{}).
		Where("lead_id = ? AND status = ?", leadID, models.StepStatusScheduled).
		Update("status", models.StepStatusCanceled)
	return res.RowsAffected, res.Error
}
