package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leadflow/models"
)

func TestNormalizeEmailEvent(t *testing.T) {
	cases := []struct {
		event string
		want  DeliveryStatus
	}{
		{EmailEventDelivery, DeliverySuccess},
		{EmailEventOpen, DeliverySuccess},
		{EmailEventClick, DeliverySuccess},
		{EmailEventHardBounce, DeliveryFailed},
		{EmailEventSoftBounce, DeliveryFailed},
		{EmailEventBounce, DeliveryFailed},
		{EmailEventSpamComplaint, DeliveryFailed},
		{"SubscriptionChange", DeliveryInProgress},
		{"", DeliveryInProgress},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeEmailEvent(tc.event), "event %q", tc.event)
	}
}

func TestNormalizeSMSStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want DeliveryStatus
	}{
		{"delivered", DeliverySuccess},
		{"sent", DeliveryInProgress},
		{"queued", DeliveryInProgress},
		{"failed", DeliveryFailed},
		{"undelivered", DeliveryFailed},
		{"DELIVRD", DeliverySuccess},
		{"UNDELIV", DeliveryFailed},
		{"REJECTD", DeliveryFailed},
		{"EXPIRED", DeliveryFailed},
		{"ACCEPTD", DeliveryInProgress},
		{"ENROUTE", DeliveryInProgress},
		{"weird", DeliveryUnknown},
		{"", DeliveryUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeSMSStatus(tc.raw), "status %q", tc.raw)
	}
}

func TestAttemptStatusFor(t *testing.T) {
	assert.Equal(t, models.AttemptStatusSuccess, AttemptStatusFor(DeliverySuccess))
	assert.Equal(t, models.AttemptStatusFailed, AttemptStatusFor(DeliveryFailed))
	assert.Equal(t, models.AttemptStatusInProgress, AttemptStatusFor(DeliveryInProgress))
	// Unknown reads as still-in-flight rather than terminal.
	assert.Equal(t, models.AttemptStatusInProgress, AttemptStatusFor(DeliveryUnknown))
}
