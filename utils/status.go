package utils

import (
	"strings"

	"leadflow/models"
)

// DeliveryStatus is the canonical status vocabulary every provider-specific
// event type normalizes into.
type DeliveryStatus string

const (
	DeliverySuccess    DeliveryStatus = "SUCCESS"
	DeliveryFailed     DeliveryStatus = "FAILED"
	DeliveryInProgress DeliveryStatus = "IN_PROGRESS"
	DeliveryUnknown    DeliveryStatus = "UNKNOWN"
)

// Email webhook event names (Postmark-style RecordType, with bounce records
// refined by their Type field).
const (
	EmailEventDelivery      = "Delivery"
	EmailEventOpen          = "Open"
	EmailEventClick         = "Click"
	EmailEventBounce        = "Bounce"
	EmailEventHardBounce    = "HardBounce"
	EmailEventSoftBounce    = "SoftBounce"
	EmailEventSpamComplaint = "SpamComplaint"
)

// NormalizeEmailEvent maps an email webhook event name into the canonical
// status set. Unrecognized event types normalize to IN_PROGRESS so an unknown
// signal never regresses an attempt into an error state.
func NormalizeEmailEvent(event string) DeliveryStatus {
	switch event {
	case EmailEventDelivery, EmailEventOpen, EmailEventClick:
		return DeliverySuccess
	case EmailEventHardBounce, EmailEventSoftBounce, EmailEventBounce, EmailEventSpamComplaint:
		return DeliveryFailed
	default:
		return DeliveryInProgress
	}
}

// smsStatusTable folds the raw vocabularies of the supported SMS providers
// into the canonical set. Lowercase entries are the REST-style providers
// (twilio et al.), uppercase entries the SMPP-style DLR codes.
var smsStatusTable = map[string]DeliveryStatus{
	"delivered":   DeliverySuccess,
	"failed":      DeliveryFailed,
	"undelivered": DeliveryFailed,
	"queued":      DeliveryInProgress,
	"accepted":    DeliveryInProgress,
	"sending":     DeliveryInProgress,
	"sent":        DeliveryInProgress,

	"DELIVRD": DeliverySuccess,
	"UNDELIV": DeliveryFailed,
	"REJECTD": DeliveryFailed,
	"EXPIRED": DeliveryFailed,
	"ACCEPTD": DeliveryInProgress,
	"ENROUTE": DeliveryInProgress,
}

// NormalizeSMSStatus maps a raw provider status into the canonical set. An
// unrecognized raw status normalizes to UNKNOWN rather than guessing.
func NormalizeSMSStatus(raw string) DeliveryStatus {
	if status, ok := smsStatusTable[strings.TrimSpace(raw)]; ok {
		return status
	}
	return DeliveryUnknown
}

// AttemptStatusFor translates a canonical delivery status into the attempt
// status applied during reconciliation. UNKNOWN is treated conservatively as
// still in flight.
func AttemptStatusFor(status DeliveryStatus) models.AttemptStatus {
	switch status {
	case DeliverySuccess:
		return models.AttemptStatusSuccess
	case DeliveryFailed:
		return models.AttemptStatusFailed
	default:
		return models.AttemptStatusInProgress
	}
}
