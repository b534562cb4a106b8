package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Payout provider (money movement: debits and payouts).
	PayoutProvider    string
	PayoutAPIKey      string
	PayoutBaseURL     string
	PlatformAccountID string
	PlatformMethodID  string

	// Billing provider (monthly platform-fee invoicing).
	BillingProvider string
	BillingAPIKey   string
	BillingBaseURL  string

	// Webhook ingestion. Secrets is a comma-separated list so a new
	// signing secret can be rotated in alongside the old one.
	WebhookSecrets          []string
	WebhookToleranceSeconds int
	WebhookVerifyDisabled   bool

	// Scheduler cadence and job selection. An empty job list enables
	// every job in this process.
	SchedulerIntervalSeconds int
	SchedulerEnabledJobs     []string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "tipwave"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "tipwave"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		PayoutProvider:    getenv("PAYOUT_PROVIDER", "moov"),
		PayoutAPIKey:      strings.TrimSpace(getenv("PAYOUT_API_KEY", "")),
		PayoutBaseURL:     getenv("PAYOUT_BASE_URL", "https://api.moov.io"),
		PlatformAccountID: strings.TrimSpace(getenv("PLATFORM_ACCOUNT_ID", "")),
		PlatformMethodID:  strings.TrimSpace(getenv("PLATFORM_METHOD_ID", "")),

		BillingProvider: getenv("BILLING_PROVIDER", "stripe"),
		BillingAPIKey:   strings.TrimSpace(getenv("BILLING_API_KEY", "")),
		BillingBaseURL:  getenv("BILLING_BASE_URL", "https://api.stripe.com"),

		WebhookSecrets:          parseList(getenv("WEBHOOK_SIGNING_SECRETS", "")),
		WebhookToleranceSeconds: getenvInt("WEBHOOK_TOLERANCE_SECONDS", 300),
		WebhookVerifyDisabled:   getenvBool("WEBHOOK_VERIFY_DISABLED", false),

		SchedulerIntervalSeconds: getenvInt("SCHEDULER_INTERVAL_SECONDS", 60),
		SchedulerEnabledJobs:     parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
	}

	// Signature verification may only be disabled outside production.
	if environment == "production" {
		cfg.WebhookVerifyDisabled = false
	}

	return &cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
