package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	controller "leadflow/controllers"
	"leadflow/middleware"
	"leadflow/utils"
)

// Pipeline bundles the dispatch pipeline services the HTTP surface exposes.
type Pipeline struct {
	Deduper    *utils.LeadDeduper
	Router     *utils.ChannelRouter
	Reconciler *utils.DeliveryReconciler
}

func SetupRoutes(app *fiber.App, db *gorm.DB, log *logrus.Logger, p *Pipeline) {
	intakeController := controller.NewIntakeController(db, log, p.Deduper)
	dispatchController := controller.NewDispatchController(db, log, p.Router)
	webhookController := controller.NewWebhookController(db, log, p.Reconciler)

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// API group
	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Lead intake
	leads := api.Group("/leads")
	leads.Post("/bulk", intakeController.BulkCreateLeads)
	leads.Get("/:id", intakeController.GetLead)

	// Contact dispatch
	api.Post("/dispatch", dispatchController.DispatchContact)

	// SMS delivery log
	api.Get("/sms-events", webhookController.GetSmsEvents)

	// Provider webhooks: public, rate limited, always acknowledged
	webhooks := app.Group("/webhooks", middleware.WebhookRateLimiter())
	webhooks.Post("/email", webhookController.HandleEmailWebhook)
	webhooks.Post("/sms/:provider", webhookController.HandleSMSWebhook)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Info("Routes initialized successfully")
}
