package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		// t.Setenv restores the variables after the test.
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5432")
		t.Setenv("APP_PORT", "8080")
		t.Setenv("APP_ENV", "test")
		t.Setenv("SHIPPO_API_KEY", "shippo_test")
		t.Setenv("STRIPE_SECRET_KEY", "sk_test")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
		t.Setenv("PROMO_ENDS_AT", "2027-01-01T06:00:00Z")
		t.Setenv("SESSION_TTL", "45m")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "shippo_test", cfg.ShippoAPIKey)
		assert.Equal(t, "sk_test", cfg.StripeSecretKey)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
		assert.Equal(t, time.Date(2027, 1, 1, 6, 0, 0, 0, time.UTC), cfg.PromoEndsAt)
		assert.Equal(t, 45*time.Minute, cfg.SessionTTL)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("APP_PORT", "")
		t.Setenv("KAFKA_BROKERS", "")
		t.Setenv("ADMIN_EMAIL", "")
		t.Setenv("NOTIFY_TOPIC", "")
		t.Setenv("PROMO_ENDS_AT", "not-a-date")
		t.Setenv("SESSION_TTL", "")
		t.Setenv("DB_SSLMODE", "")

		cfg := LoadConfig()

		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "disable", cfg.DBSSLMode)
		assert.Nil(t, cfg.KafkaBrokers)
		assert.Equal(t, "contact@themonarchmail.com", cfg.AdminEmail)
		assert.Equal(t, "notifications", cfg.NotifyTopic)
		assert.Equal(t, time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC), cfg.PromoEndsAt)
		assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	})
}
