package config

import (
	"strings"
	"testing"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"BASE_CURRENCY", "FRONTEND_URL", "BACKEND_URL", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
	"NOWPAYMENTS_API_KEY", "NOWPAYMENTS_IPN_SECRET", "NOWPAYMENTS_API_URL", "SENDGRID_API_KEY",
	"SENDGRID_FROM_EMAIL", "ORDERS_TABLE", "WEBHOOK_DELIVERIES_TABLE", "NOTIFICATIONS_QUEUE_URL",
	"METRICS_NAMESPACE", "LOG_LEVEL", "RUN_LOCAL", "PROVIDER_TIMEOUT", "CANCELLATION_POLICY", "STORE_NAME",
}

func clearEnv(t *testing.T) {
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "GBP", cfg.BaseCurrency)
	assert.Equal(t, defaultFrontendURL, cfg.FrontendBaseURL)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, orders.CancelPendingOnly, cfg.CancellationPolicy)
	assert.Equal(t, "orders", cfg.OrdersTable)
	assert.Equal(t, defaultStoreName, cfg.StoreName)
	assert.False(t, cfg.CardEnabled())
	assert.False(t, cfg.CryptoEnabled())
	assert.False(t, cfg.EmailEnabled())

	joined := strings.Join(cfg.Warnings(), "\n")
	assert.Contains(t, joined, "card payments disabled")
	assert.Contains(t, joined, "crypto payments disabled")
	assert.Contains(t, joined, "email notifications disabled")
}

func TestLoad_Configured(t *testing.T) {
	clearEnv(t)
	t.Setenv("BASE_CURRENCY", "eur")
	t.Setenv("FRONTEND_URL", "https://shop.example/")
	t.Setenv("BACKEND_URL", "https://api.shop.example")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("NOWPAYMENTS_API_KEY", "np_123")
	t.Setenv("NOWPAYMENTS_IPN_SECRET", "ipn_123")
	t.Setenv("SENDGRID_API_KEY", "sg_123")
	t.Setenv("NOTIFICATIONS_QUEUE_URL", "https://sqs.example/queue")
	t.Setenv("WEBHOOK_DELIVERIES_TABLE", "deliveries")
	t.Setenv("PROVIDER_TIMEOUT", "5s")
	t.Setenv("CANCELLATION_POLICY", "until_shipped")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "EUR", cfg.BaseCurrency)
	assert.Equal(t, "https://shop.example", cfg.FrontendBaseURL)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, orders.CancelUntilShipped, cfg.CancellationPolicy)
	assert.True(t, cfg.CardEnabled())
	assert.True(t, cfg.CryptoEnabled())
	assert.True(t, cfg.EmailEnabled())
	assert.Empty(t, cfg.Warnings())
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("CANCELLATION_POLICY", "always")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("BASE_CURRENCY", "POUNDS")
	_, err = Load()
	assert.Error(t, err)
}
