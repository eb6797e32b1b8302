package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL   string
	RedisURL      string
	PublicBaseURL string
	JWTSecret     string

	// Brokerage API
	BrokerBaseURL   string
	BrokerAPIKey    string
	BrokerAPISecret string
	FirmAccountID   string

	// Polling budgets for the claim workflow
	ActivationMaxAttempts int
	ActivationInterval    time.Duration
	SettlementMaxAttempts int
	SettlementInterval    time.Duration

	// Twilio WhatsApp notifications
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string

	// Cron expression for the unclaimed-gift reminder job
	ReminderSchedule string
	// Gifts pending longer than this get a reminder nudge
	ReminderAfter time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Env:       getEnvWithDefault("ENV", "development"),
		Port:      getEnvWithDefault("PORT", "8080"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),
		PublicBaseURL: getEnvWithDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		BrokerBaseURL:   getEnvWithDefault("BROKER_BASE_URL", "https://broker-api.sandbox.alpaca.markets"),
		BrokerAPIKey:    os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret: os.Getenv("BROKER_API_SECRET"),
		FirmAccountID:   os.Getenv("FIRM_ACCOUNT_ID"),

		ActivationMaxAttempts: getEnvInt("ACTIVATION_MAX_ATTEMPTS", 30),
		ActivationInterval:    getEnvDuration("ACTIVATION_INTERVAL", 2*time.Second),
		SettlementMaxAttempts: getEnvInt("SETTLEMENT_MAX_ATTEMPTS", 10),
		SettlementInterval:    getEnvDuration("SETTLEMENT_INTERVAL", 2*time.Second),

		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),

		ReminderSchedule: getEnvWithDefault("REMINDER_SCHEDULE", "0 * * * *"),
		ReminderAfter:    getEnvDuration("REMINDER_AFTER", 24*time.Hour),
	}

	// Warn if using default JWT secret (insecure for production)
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		log.Println("WARNING: Using default JWT_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	return cfg
}

// MissingBrokerVars returns the names of brokerage configuration values that
// are absent. The claim workflow refuses to start when any are missing and
// reports exactly which ones, so operators don't have to guess.
func (c *Config) MissingBrokerVars() []string {
	var missing []string
	if c.BrokerAPIKey == "" {
		missing = append(missing, "BROKER_API_KEY")
	}
	if c.BrokerAPISecret == "" {
		missing = append(missing, "BROKER_API_SECRET")
	}
	if c.FirmAccountID == "" {
		missing = append(missing, "FIRM_ACCOUNT_ID")
	}
	return missing
}

// SecureCookies reports whether session cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return c.Env == "production"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("WARNING: invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("WARNING: invalid %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
