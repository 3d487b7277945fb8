package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"leadflow/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// QuietHoursConfig defines the daily window during which outbound contact is
// permitted. Hours are in the configured timezone; StartHour == EndHour
// disables the check.
type QuietHoursConfig struct {
	StartHour     int    `json:"start_hour"`
	EndHour       int    `json:"end_hour"`
	Timezone      string `json:"timezone"`
	AllowWeekends bool   `json:"allow_weekends"`
}

type EmailProviderConfig struct {
	BaseURL     string `json:"base_url"`
	ServerToken string `json:"-"`
	FromEmail   string `json:"from_email"`
	FromName    string `json:"from_name"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	From     string `json:"from"`
}

type SMSProviderConfig struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"base_url"`
	APIToken string `json:"-"`
	Sender   string `json:"sender"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	SentryDSN string `json:"-"`

	Redis RedisConfig `json:"redis"`

	QuietHours QuietHoursConfig `json:"quiet_hours"`

	// Frequency cap: refuse contact once a lead has this many attempts within
	// the lookback window.
	MaxAttemptsPerLead int `json:"max_attempts_per_lead"`
	LookbackHours      int `json:"lookback_hours"`

	Email EmailProviderConfig `json:"email"`
	SMTP  SMTPConfig          `json:"smtp"`
	SMS   SMSProviderConfig   `json:"sms"`

	RateLimitWebhook int `json:"rate_limit_webhook"` // requests/minute per source
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "leadflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		QuietHours: QuietHoursConfig{
			StartHour:     getEnvAsInt("CONTACT_WINDOW_START_HOUR", 8),
			EndHour:       getEnvAsInt("CONTACT_WINDOW_END_HOUR", 20),
			Timezone:      getEnv("CONTACT_WINDOW_TIMEZONE", "America/New_York"),
			AllowWeekends: getEnv("CONTACT_ALLOW_WEEKENDS", "false") == "true",
		},

		MaxAttemptsPerLead: getEnvAsInt("MAX_ATTEMPTS_PER_LEAD", 3),
		LookbackHours:      getEnvAsInt("ATTEMPT_LOOKBACK_HOURS", 72),

		Email: EmailProviderConfig{
			BaseURL:     getEnv("EMAIL_API_BASE_URL", "https://api.postmarkapp.com"),
			ServerToken: getEnv("EMAIL_API_TOKEN", ""),
			FromEmail:   getEnv("EMAIL_FROM", ""),
			FromName:    getEnv("EMAIL_FROM_NAME", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		SMS: SMSProviderConfig{
			Provider: getEnv("SMS_PROVIDER", "twilio"),
			BaseURL:  getEnv("SMS_API_BASE_URL", ""),
			APIToken: getEnv("SMS_API_TOKEN", ""),
			Sender:   getEnv("SMS_SENDER", ""),
		},

		RateLimitWebhook: getEnvAsInt("RATE_LIMIT_WEBHOOK", 600),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if _, err := time.LoadLocation(AppConfig.QuietHours.Timezone); err != nil {
		return fmt.Errorf("invalid CONTACT_WINDOW_TIMEZONE: %w", err)
	}
	if AppConfig.Environment == "production" && AppConfig.Email.ServerToken == "" {
		return fmt.Errorf("EMAIL_API_TOKEN is required in production")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Contact window: %02d:00-%02d:00 %s (weekends: %t)",
		AppConfig.QuietHours.StartHour,
		AppConfig.QuietHours.EndHour,
		AppConfig.QuietHours.Timezone,
		AppConfig.QuietHours.AllowWeekends)
	log.Printf("Providers: email API(%t), SMTP(%t), SMS %s(%t)",
		AppConfig.Email.ServerToken != "",
		AppConfig.SMTP.Host != "",
		AppConfig.SMS.Provider,
		AppConfig.SMS.BaseURL != "")
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Lead{},
		&models.LeadNote{},
		&models.Campaign{},
		&models.ABTest{},
		&models.ContactAttempt{},
		&models.IntegrationConfig{},
		&models.SmsDeliveryEvent{},
		&models.SequenceStepExecution{},
	)
}
