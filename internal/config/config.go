package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Development bool
	// API configuration
	APIPort       int
	AdminAPIToken string

	// Database configuration
	DatabaseDriver   string
	SQLitePath       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Telegram configuration
	TelegramBotToken      string
	TelegramWebhookURL    string
	TelegramWebhookSecret string
	AdminTelegramID       string

	// Marketplace configuration
	AvitoBaseURL string
	ChatPageSize int

	// Payment provider configuration
	TochkaBaseURL     string
	TochkaJWTToken    string
	TochkaBankCode    string
	PaymentSuccessURL string

	// Scheduling configuration
	MessageCheckSchedule string
	BalanceCheckSchedule string
	ReminderSchedule     string
	CycleTimeout         time.Duration
	CycleWorkers         int
	HTTPTimeout          time.Duration
	InstanceID           string

	// Reminder content
	ReminderText string
	ReminderURL  string
}

// WebhookMode reports whether Telegram updates arrive through the HTTP API
// instead of long polling.
func (c *Config) WebhookMode() bool {
	return c.TelegramWebhookURL != ""
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:   getEnvAsBool("DEVELOPMENT", false),
		APIPort:       getEnvAsInt("API_PORT", 6532),
		AdminAPIToken: getEnv("ADMIN_API_TOKEN", ""),

		DatabaseDriver:   strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		SQLitePath:       getEnv("SQLITE_PATH", "avireply.db"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "avireply"),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookURL:    getEnv("TELEGRAM_WEBHOOK_URL", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		AdminTelegramID:       getEnv("ADMIN_TELEGRAM_ID", ""),

		AvitoBaseURL: getEnv("AVITO_BASE_URL", "https://api.avito.ru"),
		ChatPageSize: getEnvAsInt("CHAT_PAGE_SIZE", 100),

		TochkaBaseURL:     getEnv("TOCHKA_BASE_URL", "https://enter.tochka.com"),
		TochkaJWTToken:    getEnv("TOCHKA_JWT_TOKEN", ""),
		TochkaBankCode:    getEnv("TOCHKA_BANK_CODE", "044525104"),
		PaymentSuccessURL: getEnv("PAYMENT_SUCCESS_URL", ""),

		MessageCheckSchedule: getEnv("MESSAGE_CHECK_SCHEDULE", "@every 1m"),
		BalanceCheckSchedule: getEnv("BALANCE_CHECK_SCHEDULE", "@every 1h"),
		ReminderSchedule:     getEnv("REMINDER_SCHEDULE", "@every 72h"),
		CycleTimeout:         getEnvAsDuration("CYCLE_TIMEOUT", 5*time.Minute),
		CycleWorkers:         getEnvAsInt("CYCLE_WORKERS", 4),
		HTTPTimeout:          getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		InstanceID:           getEnv("INSTANCE_ID", ""),

		ReminderText: getEnv("REMINDER_TEXT", "Reminder: our mailing bot can broadcast messages to your marketplace chats, filter them by date and attach images."),
		ReminderURL:  getEnv("REMINDER_URL", "https://t.me/avsender_bot"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	if c.TochkaJWTToken == "" {
		return fmt.Errorf("TOCHKA_JWT_TOKEN is required")
	}

	if c.PaymentSuccessURL == "" {
		return fmt.Errorf("PAYMENT_SUCCESS_URL is required")
	}

	if c.AdminTelegramID == "" {
		return fmt.Errorf("ADMIN_TELEGRAM_ID is required")
	}

	if c.AvitoBaseURL == "" || c.TochkaBaseURL == "" {
		return fmt.Errorf("AVITO_BASE_URL and TOCHKA_BASE_URL are required")
	}

	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.CycleWorkers < 1 {
		return fmt.Errorf("CYCLE_WORKERS must be positive")
	}

	if c.ChatPageSize < 1 || c.ChatPageSize > 100 {
		return fmt.Errorf("CHAT_PAGE_SIZE must be between 1 and 100")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
