package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHECKOUT_MODE", "")
	t.Setenv("STRICT_STATUS_TRANSITIONS", "")
	t.Setenv("PORT", "")
	t.Setenv("PROMETHEUS_PORT", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, CheckoutModeAtomic, cfg.Business.CheckoutMode)
	assert.False(t, cfg.Business.StrictStatusTransitions)
	assert.Equal(t, 30, cfg.Business.IdempotencyTTLSeconds)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "9090", cfg.Observ.PrometheusPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHECKOUT_MODE", "LEGACY")
	t.Setenv("STRICT_STATUS_TRANSITIONS", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TRACKING_CACHE_TTL_SECONDS", "5")
	t.Setenv("PROMETHEUS_PORT", "9191")

	cfg := Load()

	assert.Equal(t, CheckoutModeLegacy, cfg.Business.CheckoutMode)
	assert.True(t, cfg.Business.StrictStatusTransitions)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Business.TrackingCacheTTLSeconds)
	assert.Equal(t, "9191", cfg.Observ.PrometheusPort)
}

func TestLoadUnknownCheckoutMode(t *testing.T) {
	t.Setenv("CHECKOUT_MODE", "yolo")

	cfg := Load()

	assert.Equal(t, CheckoutModeAtomic, cfg.Business.CheckoutMode)
}
