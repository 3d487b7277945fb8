package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"leadflow/models"
)

// Contact refusals. These are routing decisions, not failures: no attempt row
// is created for a refused contact.
var (
	ErrContactNotPermitted = errors.New("contact not permitted")
	ErrFrequencyCapped     = errors.New("frequency cap reached")
)

// RouterStore is the persistence surface the router needs.
type RouterStore interface {
	CountAttemptsSince(leadID uint, since time.Time) (int64, error)
	// PrimaryIntegration returns the primary provider config for the channel
	// type, or nil when none is configured.
	PrimaryIntegration(channel models.Channel) (*models.IntegrationConfig, error)
	CreateAttempt(attempt *models.ContactAttempt) error
	UpdateAttempt(attempt *models.ContactAttempt) error
}

// ProviderRegistry resolves provider names to clients and knows each
// channel's fallback provider.
type ProviderRegistry struct {
	emails        map[string]EmailProvider
	smses         map[string]SMSProvider
	fallbackEmail string
	fallbackSMS   string
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		emails: make(map[string]EmailProvider),
		smses:  make(map[string]SMSProvider),
	}
}

// RegisterEmail adds an email provider; the first registration becomes the
// channel fallback unless SetEmailFallback overrides it.
func (r *ProviderRegistry) RegisterEmail(p EmailProvider) {
	r.emails[p.Name()] = p
	if r.fallbackEmail == "" {
		r.fallbackEmail = p.Name()
	}
}

func (r *ProviderRegistry) RegisterSMS(p SMSProvider) {
	r.smses[p.Name()] = p
	if r.fallbackSMS == "" {
		r.fallbackSMS = p.Name()
	}
}

func (r *ProviderRegistry) SetEmailFallback(name string) { r.fallbackEmail = name }
func (r *ProviderRegistry) SetSMSFallback(name string)   { r.fallbackSMS = name }

// EmailFor resolves the email client for a provider name, falling back to the
// channel default when the name is unknown or empty.
func (r *ProviderRegistry) EmailFor(name string) EmailProvider {
	if p, ok := r.emails[name]; ok {
		return p
	}
	return r.emails[r.fallbackEmail]
}

func (r *ProviderRegistry) SMSFor(name string) SMSProvider {
	if p, ok := r.smses[name]; ok {
		return p
	}
	return r.smses[r.fallbackSMS]
}

// RouteResult is the successful outcome of routing one contact.
type RouteResult struct {
	AttemptID   uint   `json:"attempt_id"`
	ProviderRef string `json:"provider_ref,omitempty"`
	// Queued is set when the send was handed to the batch dispatcher; the
	// provider ref arrives after the batch completes.
	Queued bool `json:"queued,omitempty"`
}

// ChannelRouter decides whether a contact is permitted, selects script and
// provider, creates the attempt record, and dispatches the send.
type ChannelRouter struct {
	store    RouterStore
	schedule ScheduleChecker
	variants VariantAssigner
	registry *ProviderRegistry
	batcher  *EmailBatcher
	logger   *logrus.Logger

	MaxAttemptsPerLead int
	Lookback           time.Duration
}

func NewChannelRouter(store RouterStore, schedule ScheduleChecker, variants VariantAssigner,
	registry *ProviderRegistry, batcher *EmailBatcher, logger *logrus.Logger,
	maxAttempts int, lookback time.Duration) *ChannelRouter {
	return &ChannelRouter{
		store:              store,
		schedule:           schedule,
		variants:           variants,
		registry:           registry,
		batcher:            batcher,
		logger:             logger,
		MaxAttemptsPerLead: maxAttempts,
		Lookback:           lookback,
	}
}

// RouteContact runs the full routing sequence for one lead+campaign+channel.
//
// The attempt row is created before the provider call, so a send that fails
// mid-flight still leaves an auditable PENDING/FAILED record. Refusals
// (schedule, frequency cap) happen before that point and create no row.
func (r *ChannelRouter) RouteContact(lead *models.Lead, campaign *models.Campaign, channel models.Channel) (*RouteResult, error) {
	if channel == models.ChannelCall {
		return nil, fmt.Errorf("channel %s has no automated dispatch provider", channel)
	}
	if lead.Status == models.LeadStatusDoNotContact {
		return nil, fmt.Errorf("%w: lead %d is suppressed", ErrContactNotPermitted, lead.ID)
	}

	// 1. Schedule / quiet hours
	if ok, reason := r.schedule.AllowContact(channel); !ok {
		return nil, fmt.Errorf("%w: %s", ErrContactNotPermitted, reason)
	}

	// 2. Frequency cap
	count, err := r.store.CountAttemptsSince(lead.ID, time.Now().Add(-r.Lookback))
	if err != nil {
		return nil, fmt.Errorf("frequency cap lookup failed: %w", err)
	}
	if count >= int64(r.MaxAttemptsPerLead) {
		return nil, fmt.Errorf("%w: %d attempts within %s", ErrFrequencyCapped, count, r.Lookback)
	}

	// 3. Script selection: A/B variant when an active test exists, campaign
	// default otherwise.
	subject, htmlBody, textBody, smsBody := campaignScript(campaign)
	var variantTag string
	if campaign != nil {
		variant, tag, err := r.variants.Assign(campaign.ID, channel, lead.ID)
		if err != nil {
			r.logger.WithError(err).WithField("campaign_id", campaign.ID).Warn("variant lookup failed, using default script")
		} else if variant != nil {
			variantTag = tag
			if variant.Subject != "" {
				subject = variant.Subject
			}
			if variant.HTMLBody != "" {
				htmlBody = variant.HTMLBody
			}
			if variant.TextBody != "" {
				textBody = variant.TextBody
			}
			if variant.SmsBody != "" {
				smsBody = variant.SmsBody
			}
		}
	}

	// 4. Provider resolution with silent fallback.
	providerName, err := r.resolveProvider(channel)
	if err != nil {
		return nil, err
	}

	// 5. Attempt row exists before the send, so there is something to
	// reconcile against even if the dispatch dies before returning.
	attempt := &models.ContactAttempt{
		LeadID:    lead.ID,
		Channel:   channel,
		Provider:  providerName,
		Status:    models.AttemptStatusPending,
		StartedAt: time.Now(),
		Result:    models.AttemptResult{Variant: variantTag},
	}
	if campaign != nil {
		attempt.CampaignID = &campaign.ID
	}
	if err := r.store.CreateAttempt(attempt); err != nil {
		return nil, fmt.Errorf("failed to create contact attempt: %w", err)
	}

	// 6. Dispatch
	switch channel {
	case models.ChannelEmail:
		msg := EmailMessage{
			Subject:  subject,
			HTMLBody: htmlBody,
			TextBody: textBody,
			Tag:      variantTag,
		}
		if campaign != nil {
			msg.FromEmail = campaign.FromEmail
			msg.FromName = campaign.FromName
			msg.Metadata = map[string]string{"campaign_id": fmt.Sprint(campaign.ID)}
		}
		if campaign != nil && campaign.BatchSend && r.batcher != nil {
			r.batcher.Add(EmailBatchItem{AttemptID: attempt.ID, Lead: *lead, Message: msg})
			return &RouteResult{AttemptID: attempt.ID, Queued: true}, nil
		}
		ref, err := r.registry.EmailFor(providerName).Send(lead, msg)
		return r.finishDispatch(attempt, ref, err)

	case models.ChannelSMS:
		ref, err := r.registry.SMSFor(providerName).Send(lead, smsBody)
		return r.finishDispatch(attempt, ref, err)
	}

	return nil, fmt.Errorf("unsupported channel %s", channel)
}

// finishDispatch records the provider outcome on the already-created attempt.
// Provider errors are captured, never panicked.
func (r *ChannelRouter) finishDispatch(attempt *models.ContactAttempt, ref string, sendErr error) (*RouteResult, error) {
	if sendErr != nil {
		attempt.Status = models.AttemptStatusFailed
		attempt.Result.Error = sendErr.Error()
		attempt.CompletedAt = Pointer(time.Now())
		if err := r.store.UpdateAttempt(attempt); err != nil {
			r.logger.WithError(err).WithField("attempt_id", attempt.ID).Error("failed to record send failure")
		}
		return nil, sendErr
	}

	attempt.ProviderRef = ref
	attempt.Status = models.AttemptStatusInProgress
	if err := r.store.UpdateAttempt(attempt); err != nil {
		// The send went out; the webhook join key must not be lost silently.
		r.logger.WithError(err).WithFields(logrus.Fields{
			"attempt_id":   attempt.ID,
			"provider_ref": ref,
		}).Error("failed to record provider ref")
	}
	return &RouteResult{AttemptID: attempt.ID, ProviderRef: ref}, nil
}

// resolveProvider picks the primary provider for the channel type, falling
// back to the channel default when the primary is absent or inactive. The
// fallback is silent: it is not an error from the caller's point of view.
func (r *ChannelRouter) resolveProvider(channel models.Channel) (string, error) {
	integ, err := r.store.PrimaryIntegration(channel)
	if err != nil {
		return "", fmt.Errorf("provider lookup failed: %w", err)
	}
	if integ != nil && integ.IsActive {
		return integ.Provider, nil
	}

	var fallback string
	switch channel {
	case models.ChannelEmail:
		fallback = r.registry.fallbackEmail
	case models.ChannelSMS:
		fallback = r.registry.fallbackSMS
	}
	if fallback == "" {
		return "", fmt.Errorf("no provider available for channel %s", channel)
	}
	if integ != nil {
		r.logger.WithFields(logrus.Fields{
			"primary":  integ.Provider,
			"fallback": fallback,
			"channel":  channel,
		}).Info("primary provider inactive, using fallback")
	}
	return fallback, nil
}

func campaignScript(campaign *models.Campaign) (subject, htmlBody, textBody, smsBody string) {
	if campaign == nil {
		return
	}
	return campaign.Subject, campaign.HTMLBody, campaign.TextBody, campaign.SmsBody
}
