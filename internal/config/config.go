package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Redis backs the slot lock store; the service degrades to no locking
	// when it is unreachable.
	RedisAddr     string
	RedisPassword string

	JWTSecret string

	CORSAllowedOrigins []string

	// Payment provider (hosted checkout + signed webhooks)
	PaymentAccessToken string
	PaymentBaseURL     string
	PaymentWebhookKey  string
	PaymentSuccessURL  string
	PaymentCancelURL   string

	// Video room provider
	VideoAPIKey         string
	VideoBaseURL        string
	VideoRoomExpiryMins int

	SlotLockTTL        time.Duration
	BookingHorizonDays int

	// How often the expiry worker sweeps stale unpaid consultations.
	ExpirySweepInterval time.Duration

	// Pricing is configuration, not business logic: a flat default with
	// optional per-specialty overrides as a JSON object of cents.
	ConsultationPriceCents     int
	ConsultationPriceOverrides map[string]int

	// Notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		PaymentAccessToken: getEnv("PAYMENT_ACCESS_TOKEN", ""),
		PaymentBaseURL:     getEnv("PAYMENT_BASE_URL", ""),
		PaymentWebhookKey:  getEnv("PAYMENT_WEBHOOK_SIGNATURE_KEY", ""),
		PaymentSuccessURL:  getEnv("PAYMENT_SUCCESS_URL", ""),
		PaymentCancelURL:   getEnv("PAYMENT_CANCEL_URL", ""),

		VideoAPIKey:         getEnv("VIDEO_API_KEY", ""),
		VideoBaseURL:        getEnv("VIDEO_BASE_URL", ""),
		VideoRoomExpiryMins: getEnvAsInt("VIDEO_ROOM_EXPIRY_MINS", 60),

		SlotLockTTL:        getEnvAsDuration("SLOT_LOCK_TTL", 10*time.Minute),
		BookingHorizonDays: getEnvAsInt("BOOKING_HORIZON_DAYS", 30),

		ExpirySweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),

		ConsultationPriceCents:     getEnvAsInt("CONSULTATION_PRICE_CENTS", 5000),
		ConsultationPriceOverrides: getEnvAsIntMap("CONSULTATION_PRICE_OVERRIDES"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CareDial"),
	}
}

// PriceCents resolves the consultation price for a specialty.
func (c *Config) PriceCents(specialty string) int {
	if cents, ok := c.ConsultationPriceOverrides[strings.ToUpper(strings.TrimSpace(specialty))]; ok {
		return cents
	}
	return c.ConsultationPriceCents
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsIntMap(key string) map[string]int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	var m map[string]int
	if err := json.Unmarshal([]byte(valueStr), &m); err != nil {
		return nil
	}
	upper := make(map[string]int, len(m))
	for k, v := range m {
		upper[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return upper
}
