package controller

import (
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
	"leadflow/utils"
)

type WebhookController struct {
	DB         *gorm.DB
	Logger     *logrus.Logger
	Reconciler *utils.DeliveryReconciler
}

func NewWebhookController(db *gorm.DB, logger *logrus.Logger, reconciler *utils.DeliveryReconciler) *WebhookController {
	return &WebhookController{
		DB:         db,
		Logger:     logger,
		Reconciler: reconciler,
	}
}

// webhookAck is the unconditional webhook response. Providers retry on
// non-2xx, so even internal failures must acknowledge.
func webhookAck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true})
}

// HandleEmailWebhook processes email delivery events (deliveries, opens,
// clicks, bounces, spam complaints). Always responds 200.
func (wc *WebhookController) HandleEmailWebhook(c *fiber.Ctx) error {
	var event utils.EmailEvent
	if err := c.BodyParser(&event); err != nil {
		wc.Logger.WithError(err).Debug("unparseable email webhook payload")
		return webhookAck(c)
	}

	if err := wc.Reconciler.HandleEmailEvent(event); err != nil {
		sentry.CaptureException(err)
		wc.Logger.WithError(err).WithField("message_id", event.MessageID).Error("email event processing failed")
	}
	return webhookAck(c)
}

// HandleSMSWebhook processes SMS delivery reports. The payload shape varies
// by provider; the reconciler owns parsing so malformed JSON still acks 200.
func (wc *WebhookController) HandleSMSWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")

	if err := wc.Reconciler.HandleSMSEvent(provider, c.Body()); err != nil {
		sentry.CaptureException(err)
		wc.Logger.WithError(err).WithField("provider", provider).Error("sms event processing failed")
	}
	return webhookAck(c)
}

// GetSmsEvents returns the SMS delivery log, filterable by status, provider
// and date range.
func (wc *WebhookController) GetSmsEvents(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := wc.DB.Model(&models.SmsDeliveryEvent{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if provider := c.Query("provider"); provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid from date", err)
		}
		query = query.Where("created_at >= ?", t)
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid to date", err)
		}
		query = query.Where("created_at <= ?", t)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count events", err)
	}

	var events []models.SmsDeliveryEvent
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch events", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  events,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
