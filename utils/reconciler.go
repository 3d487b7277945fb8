package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"leadflow/models"
)

// ReconcileStore is the persistence surface reconciliation needs.
type ReconcileStore interface {
	// AttemptByProviderRef returns the attempt joined by the provider message
	// id, or nil when no match exists.
	AttemptByProviderRef(ref string) (*models.ContactAttempt, error)
	// UpdateAttemptGuarded persists the attempt only if its updated_at still
	// matches seen, closing the concurrent-redelivery race. Returns false
	// when another writer got there first.
	UpdateAttemptGuarded(attempt *models.ContactAttempt, seen time.Time) (bool, error)
	UpdateLeadStatus(leadID uint, status models.LeadStatus) error
	AppendLeadNote(leadID uint, body string) error
	CancelPendingSteps(leadID uint) (int64, error)
	RecordSmsEvent(event *models.SmsDeliveryEvent) error
}

// ScoreEnqueuer hands a lead to the asynchronous score recompute job.
type ScoreEnqueuer interface {
	Enqueue(leadID uint)
}

// EmailEvent is an inbound email provider webhook payload (Postmark shape).
type EmailEvent struct {
	MessageID   string `json:"MessageID"`
	RecordType  string `json:"RecordType"`
	Type        string `json:"Type"`
	TypeCode    int    `json:"TypeCode"`
	Email       string `json:"Email"`
	Description string `json:"Description"`
}

// DeliveryReconciler normalizes inbound provider callbacks into the canonical
// status set and applies them to contact attempts exactly once.
type DeliveryReconciler struct {
	store  ReconcileStore
	scores ScoreEnqueuer
	logger *logrus.Logger
}

const reconcileRetries = 3

func NewDeliveryReconciler(store ReconcileStore, scores ScoreEnqueuer, logger *logrus.Logger) *DeliveryReconciler {
	return &DeliveryReconciler{
		store:  store,
		scores: scores,
		logger: logger,
	}
}

// HandleEmailEvent applies one email webhook event. Malformed and unmatched
// events are dropped; the returned error covers only internal store failures
// and is for logging, never for the HTTP response (webhooks always ack 200).
func (r *DeliveryReconciler) HandleEmailEvent(ev EmailEvent) error {
	if ev.MessageID == "" || ev.RecordType == "" {
		r.logger.WithFields(logrus.Fields{
			"message_id":  ev.MessageID,
			"record_type": ev.RecordType,
		}).Debug("dropping malformed email event")
		return nil
	}

	// Bounce records are refined by their Type (HardBounce, SoftBounce, ...);
	// everything else is keyed by RecordType alone.
	eventName := ev.RecordType
	if ev.RecordType == EmailEventBounce && ev.Type != "" {
		eventName = ev.Type
	}

	attempt, err := r.store.AttemptByProviderRef(ev.MessageID)
	if err != nil {
		return fmt.Errorf("attempt lookup failed: %w", err)
	}
	if attempt == nil {
		// Unmatched email events are dropped.
		r.logger.WithField("message_id", ev.MessageID).Debug("email event matched no attempt")
		return nil
	}

	applied, err := r.applyEvent(attempt, eventName, NormalizeEmailEvent(eventName))
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	// Suppression runs only when the bounce/complaint event is applied for
	// the first time; the ledger guarantees that.
	if eventName == EmailEventHardBounce || eventName == EmailEventSpamComplaint {
		r.suppressLead(attempt.LeadID, eventName, ev.Description)
	}
	return nil
}

// HandleSMSEvent applies one SMS delivery callback. Every well-formed event
// is appended to the delivery log whether or not an attempt matches.
func (r *DeliveryReconciler) HandleSMSEvent(provider string, payload []byte) error {
	var body struct {
		ID        string `json:"id"`
		MessageID string `json:"messageId"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		r.logger.WithError(err).WithField("provider", provider).Debug("dropping unparseable sms event")
		return nil
	}

	ref := body.ID
	if ref == "" {
		ref = body.MessageID
	}
	if ref == "" || body.Status == "" {
		r.logger.WithField("provider", provider).Debug("dropping malformed sms event")
		return nil
	}

	canonical := NormalizeSMSStatus(body.Status)

	attempt, err := r.store.AttemptByProviderRef(ref)
	if err != nil {
		return fmt.Errorf("attempt lookup failed: %w", err)
	}

	event := &models.SmsDeliveryEvent{
		Provider:    provider,
		ProviderRef: ref,
		RawStatus:   body.Status,
		Status:      string(canonical),
		Payload:     string(payload),
	}
	if attempt != nil {
		event.ContactAttemptID = &attempt.ID
	}
	if err := r.store.RecordSmsEvent(event); err != nil {
		// The log row is an audit record; losing it is worth surfacing, but
		// the attempt mutation below still proceeds.
		r.logger.WithError(err).WithField("provider_ref", ref).Error("failed to record sms delivery event")
	}

	if attempt == nil {
		return nil
	}

	_, err = r.applyEvent(attempt, "sms:"+strings.ToLower(strings.TrimSpace(body.Status)), canonical)
	return err
}

// applyEvent idempotently applies an event to an attempt. Returns true when
// the event was applied, false when it was already in the ledger.
func (r *DeliveryReconciler) applyEvent(attempt *models.ContactAttempt, eventName string, canonical DeliveryStatus) (bool, error) {
	for i := 0; i < reconcileRetries; i++ {
		if attempt.Result.ProcessedEvents.Contains(eventName) {
			r.logger.WithFields(logrus.Fields{
				"attempt_id": attempt.ID,
				"event":      eventName,
			}).Debug("duplicate event, no-op")
			return false, nil
		}

		seen := attempt.UpdatedAt
		wasTerminal := attempt.Status.IsTerminal()

		attempt.Result.ProcessedEvents = attempt.Result.ProcessedEvents.Add(eventName)
		attempt.Result.LastEvent = eventName
		attempt.Status = AttemptStatusFor(canonical)
		if attempt.Status.IsTerminal() && attempt.CompletedAt == nil {
			attempt.CompletedAt = Pointer(time.Now())
		}

		ok, err := r.store.UpdateAttemptGuarded(attempt, seen)
		if err != nil {
			return false, fmt.Errorf("failed to persist event %s on attempt %d: %w", eventName, attempt.ID, err)
		}
		if ok {
			if attempt.Status.IsTerminal() && !wasTerminal {
				r.scores.Enqueue(attempt.LeadID)
			}
			return true, nil
		}

		// Lost the write race, reload and re-check the ledger.
		fresh, err := r.store.AttemptByProviderRef(attempt.ProviderRef)
		if err != nil {
			return false, fmt.Errorf("failed to reload attempt %d after write conflict: %w", attempt.ID, err)
		}
		if fresh == nil {
			return false, fmt.Errorf("attempt %d disappeared during write conflict on event %s", attempt.ID, eventName)
		}
		attempt = fresh
	}
	return false, fmt.Errorf("gave up applying event %s to attempt %d after %d conflicts", eventName, attempt.ID, reconcileRetries)
}

// suppressLead sets the lead to DO_NOT_CONTACT, appends a note, and cancels
// any pending sequence step executions.
func (r *DeliveryReconciler) suppressLead(leadID uint, eventName, description string) {
	if err := r.store.UpdateLeadStatus(leadID, models.LeadStatusDoNotContact); err != nil {
		r.logger.WithError(err).WithField("lead_id", leadID).Error("failed to suppress lead")
		return
	}

	note := fmt.Sprintf("Suppressed after %s", eventName)
	if description != "" {
		note += ": " + description
	}
	if err := r.store.AppendLeadNote(leadID, note); err != nil {
		r.logger.WithError(err).WithField("lead_id", leadID).Warn("failed to append suppression note")
	}

	canceled, err := r.store.CancelPendingSteps(leadID)
	if err != nil {
		r.logger.WithError(err).WithField("lead_id", leadID).Error("failed to cancel pending sequence steps")
		return
	}
	if canceled > 0 {
		r.logger.WithFields(logrus.Fields{
			"lead_id":  leadID,
			"canceled": canceled,
		}).Info("canceled pending sequence steps for suppressed lead")
	}
}
