package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAdminEmail  = "contact@themonarchmail.com"
	defaultPromoEndsAt = "2026-01-01T06:00:00Z" // midnight Central
	defaultSessionTTL  = 2 * time.Hour
	defaultNotifyTopic = "notifications"
	defaultStoreURL    = "https://groupoutfitters.com"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	ShippoAPIKey        string
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	UploadURL   string
	UploadToken string

	KafkaBrokers []string
	NotifyTopic  string
	AdminEmail   string

	StoreBaseURL  string
	AllowedOrigin string
	PromoEndsAt   time.Time
	SessionTTL    time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		DBSSLMode:  envOr("DB_SSLMODE", "disable"),
		AppPort:    os.Getenv("APP_PORT"),
		AppEnv:     os.Getenv("APP_ENV"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		ShippoAPIKey:        os.Getenv("SHIPPO_API_KEY"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   os.Getenv("CHECKOUT_CANCEL_URL"),

		UploadURL:   os.Getenv("UPLOAD_URL"),
		UploadToken: os.Getenv("UPLOAD_TOKEN"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		NotifyTopic:  envOr("NOTIFY_TOPIC", defaultNotifyTopic),
		AdminEmail:   envOr("ADMIN_EMAIL", defaultAdminEmail),

		StoreBaseURL:  envOr("STORE_BASE_URL", defaultStoreURL),
		AllowedOrigin: os.Getenv("CORS_ORIGIN"),
		SessionTTL:    defaultSessionTTL,
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}

	promo, err := time.Parse(time.RFC3339, envOr("PROMO_ENDS_AT", defaultPromoEndsAt))
	if err != nil {
		log.Printf("invalid PROMO_ENDS_AT, using default: %v", err)
		promo, _ = time.Parse(time.RFC3339, defaultPromoEndsAt)
	}
	cfg.PromoEndsAt = promo

	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		} else {
			log.Printf("invalid SESSION_TTL %q, using %s", v, defaultSessionTTL)
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
