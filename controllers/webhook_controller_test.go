package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"leadflow/models"
	"leadflow/utils"
)

type stubReconcileStore struct {
	attempts map[string]*models.ContactAttempt
	updated  []*models.ContactAttempt
	events   []*models.SmsDeliveryEvent
}

func (s *stubReconcileStore) AttemptByProviderRef(ref string) (*models.ContactAttempt, error) {
	attempt, ok := s.attempts[ref]
	if !ok {
		return nil, nil
	}
	clone := *attempt
	return &clone, nil
}

func (s *stubReconcileStore) UpdateAttemptGuarded(attempt *models.ContactAttempt, seen time.Time) (bool, error) {
	s.updated = append(s.updated, attempt)
	clone := *attempt
	clone.UpdatedAt = seen.Add(time.Millisecond)
	s.attempts[attempt.ProviderRef] = &clone
	return true, nil
}

func (s *stubReconcileStore) UpdateLeadStatus(uint, models.LeadStatus) error { return nil }
func (s *stubReconcileStore) AppendLeadNote(uint, string) error              { return nil }
func (s *stubReconcileStore) CancelPendingSteps(uint) (int64, error)         { return 0, nil }

func (s *stubReconcileStore) RecordSmsEvent(event *models.SmsDeliveryEvent) error {
	s.events = append(s.events, event)
	return nil
}

type noopScores struct{}

func (noopScores) Enqueue(uint) {}

func newWebhookTestApp(store *stubReconcileStore) *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reconciler := utils.NewDeliveryReconciler(store, noopScores{}, logger)
	wc := NewWebhookController(nil, logger, reconciler)

	app := fiber.New()
	app.Post("/webhooks/email", wc.HandleEmailWebhook)
	app.Post("/webhooks/sms/:provider", wc.HandleSMSWebhook)
	return app
}

func assertWebhookAck(t *testing.T, app *fiber.App, method, path, body string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, true, parsed["success"])
}

func TestHandleEmailWebhook_AcksMalformedJSON(t *testing.T) {
	store := &stubReconcileStore{attempts: map[string]*models.ContactAttempt{}}
	app := newWebhookTestApp(store)

	assertWebhookAck(t, app, "POST", "/webhooks/email", `{not json`)
	assert.Empty(t, store.updated)
}

func TestHandleEmailWebhook_AcksUnmatchedEvent(t *testing.T) {
	store := &stubReconcileStore{attempts: map[string]*models.ContactAttempt{}}
	app := newWebhookTestApp(store)

	assertWebhookAck(t, app, "POST", "/webhooks/email",
		`{"MessageID":"ghost","RecordType":"Delivery"}`)
	assert.Empty(t, store.updated)
}

func TestHandleEmailWebhook_AppliesDelivery(t *testing.T) {
	attempt := &models.ContactAttempt{
		LeadID:      7,
		Channel:     models.ChannelEmail,
		ProviderRef: "msg-1",
		Status:      models.AttemptStatusInProgress,
	}
	attempt.ID = 1
	attempt.UpdatedAt = time.Now()
	store := &stubReconcileStore{attempts: map[string]*models.ContactAttempt{"msg-1": attempt}}
	app := newWebhookTestApp(store)

	assertWebhookAck(t, app, "POST", "/webhooks/email",
		`{"MessageID":"msg-1","RecordType":"Delivery"}`)

	require.Len(t, store.updated, 1)
	assert.Equal(t, models.AttemptStatusSuccess, store.updated[0].Status)
}

func TestHandleSMSWebhook_AcksMalformedJSON(t *testing.T) {
	store := &stubReconcileStore{attempts: map[string]*models.ContactAttempt{}}
	app := newWebhookTestApp(store)

	assertWebhookAck(t, app, "POST", "/webhooks/sms/twilio", `garbage`)
	assert.Empty(t, store.events)
}

func newSmsEventsTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SmsDeliveryEvent{}))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	wc := NewWebhookController(db, logger, nil)

	app := fiber.New()
	app.Get("/sms-events", wc.GetSmsEvents)
	return app, db
}

func TestGetSmsEvents_ClampsPageAndLimit(t *testing.T) {
	app, db := newSmsEventsTestApp(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.SmsDeliveryEvent{
			Provider:    "twilio",
			ProviderRef: fmt.Sprintf("SM%d", i),
			RawStatus:   "delivered",
			Status:      string(utils.DeliverySuccess),
		}).Error)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/sms-events?page=0&limit=500", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var envelope utils.PaginatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, 1, envelope.Page, "page floors to 1")
	assert.Equal(t, 100, envelope.Limit, "limit clamps to 100")
	assert.EqualValues(t, 3, envelope.Total)
}

func TestGetSmsEvents_FiltersByStatus(t *testing.T) {
	app, db := newSmsEventsTestApp(t)
	require.NoError(t, db.Create(&models.SmsDeliveryEvent{
		Provider: "twilio", ProviderRef: "SM1", RawStatus: "delivered", Status: string(utils.DeliverySuccess),
	}).Error)
	require.NoError(t, db.Create(&models.SmsDeliveryEvent{
		Provider: "twilio", ProviderRef: "SM2", RawStatus: "failed", Status: string(utils.DeliveryFailed),
	}).Error)

	resp, err := app.Test(httptest.NewRequest("GET", "/sms-events?status=FAILED", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var envelope utils.PaginatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.EqualValues(t, 1, envelope.Total)
}

func TestGetSmsEvents_RejectsBadDateFilter(t *testing.T) {
	app, _ := newSmsEventsTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/sms-events?from=yesterday", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleSMSWebhook_LogsEventWithProviderParam(t *testing.T) {
	store := &stubReconcileStore{attempts: map[string]*models.ContactAttempt{}}
	app := newWebhookTestApp(store)

	assertWebhookAck(t, app, "POST", "/webhooks/sms/africastalking",
		`{"id":"SM1","status":"delivered"}`)

	require.Len(t, store.events, 1)
	assert.Equal(t, "africastalking", store.events[0].Provider)
	assert.Equal(t, "SM1", store.events[0].ProviderRef)
}
