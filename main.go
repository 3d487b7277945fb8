package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadflow/config"
	"leadflow/middleware"
	"leadflow/routes"
	"leadflow/utils"
	"leadflow/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Fatalf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	store := utils.NewStore(config.DB)

	// Outbound providers: the API client is the email primary, SMTP the
	// fallback; SMS has a single gateway client.
	registry := utils.NewProviderRegistry()
	emailClient := utils.NewEmailAPIClient(config.AppConfig.Email)
	registry.RegisterEmail(emailClient)
	if config.AppConfig.SMTP.Host != "" {
		registry.RegisterEmail(utils.NewSMTPEmailClient(config.AppConfig.SMTP))
		registry.SetEmailFallback("smtp")
	}
	registry.RegisterSMS(utils.NewSMSAPIClient(config.AppConfig.SMS))

	batcher := utils.NewEmailBatcher(emailClient, store, logger)
	defer batcher.Reset()

	schedule, err := utils.NewQuietHoursSchedule(config.AppConfig.QuietHours)
	if err != nil {
		logger.Fatalf("Failed to build contact schedule: %v", err)
	}

	router := utils.NewChannelRouter(
		store,
		schedule,
		utils.NewDBVariantAssigner(config.DB),
		registry,
		batcher,
		logger,
		config.AppConfig.MaxAttemptsPerLead,
		time.Duration(config.AppConfig.LookbackHours)*time.Hour,
	)

	// Initialize and start the score recompute worker
	scoreWorker := worker.NewScoreWorker(config.DB, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scoreWorker.Start(ctx)

	reconciler := utils.NewDeliveryReconciler(store, scoreWorker, logger)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, config.DB, logger, &routes.Pipeline{
		Deduper:    utils.NewLeadDeduper(store, logger),
		Router:     router,
		Reconciler: reconciler,
	})

	// Start server
	logger.Infof("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
