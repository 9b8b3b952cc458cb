package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
)

const (
	defaultFrontendURL     = "https://infiniteclothingstore.co.uk"
	defaultFromEmail       = "noreply@infiniteclothingstore.co.uk"
	defaultStoreName       = "Infinite Clothing Store"
	defaultNowPaymentsURL  = "https://api.nowpayments.io/v1"
	defaultProviderTimeout = 15 * time.Second
	defaultDeliveryTTL     = 72 * time.Hour
)

// Config is the runtime configuration, read from the environment.
type Config struct {
	BaseCurrency           string
	FrontendBaseURL        string
	BackendCallbackBaseURL string

	CardProviderKey    string // STRIPE_SECRET_KEY
	CardWebhookSecret  string // STRIPE_WEBHOOK_SECRET
	CryptoProviderKey  string // NOWPAYMENTS_API_KEY
	CryptoIPNSecret    string // NOWPAYMENTS_IPN_SECRET
	CryptoProviderURL  string
	EmailProviderKey   string // SENDGRID_API_KEY
	EmailFromAddress   string
	StoreName          string
	ProviderTimeout    time.Duration
	CancellationPolicy orders.CancellationPolicy
	OrdersTable        string
	DeliveriesTable    string
	DeliveryTTL        time.Duration
	NotificationsQueue string
	MetricsNamespace   string
	LogLevel           string
	RunLocal           bool
}

// Load reads the configuration. Missing provider keys are not errors; see Warnings.
func Load() (Config, error) {
	cfg := Config{
		BaseCurrency:           strings.ToUpper(getenv("BASE_CURRENCY", "GBP")),
		FrontendBaseURL:        strings.TrimRight(getenv("FRONTEND_URL", defaultFrontendURL), "/"),
		BackendCallbackBaseURL: strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		CardProviderKey:        os.Getenv("STRIPE_SECRET_KEY"),
		CardWebhookSecret:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CryptoProviderKey:      os.Getenv("NOWPAYMENTS_API_KEY"),
		CryptoIPNSecret:        os.Getenv("NOWPAYMENTS_IPN_SECRET"),
		CryptoProviderURL:      strings.TrimRight(getenv("NOWPAYMENTS_API_URL", defaultNowPaymentsURL), "/"),
		EmailProviderKey:       os.Getenv("SENDGRID_API_KEY"),
		EmailFromAddress:       getenv("SENDGRID_FROM_EMAIL", defaultFromEmail),
		StoreName:              getenv("STORE_NAME", defaultStoreName),
		OrdersTable:            getenv("ORDERS_TABLE", "orders"),
		DeliveriesTable:        os.Getenv("WEBHOOK_DELIVERIES_TABLE"),
		NotificationsQueue:     os.Getenv("NOTIFICATIONS_QUEUE_URL"),
		MetricsNamespace:       os.Getenv("METRICS_NAMESPACE"),
		LogLevel:               getenv("LOG_LEVEL", "info"),
		RunLocal:               os.Getenv("RUN_LOCAL") == "true",
		ProviderTimeout:        defaultProviderTimeout,
		DeliveryTTL:            defaultDeliveryTTL,
	}

	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid PROVIDER_TIMEOUT %q", v)
		}
		cfg.ProviderTimeout = d
	}

	policy, err := orders.ParseCancellationPolicy(os.Getenv("CANCELLATION_POLICY"))
	if err != nil {
		return Config{}, err
	}
	cfg.CancellationPolicy = policy

	if len(cfg.BaseCurrency) != 3 {
		return Config{}, fmt.Errorf("invalid BASE_CURRENCY %q", cfg.BaseCurrency)
	}
	return cfg, nil
}

func (c Config) CardEnabled() bool { return c.CardProviderKey != "" }
func (c Config) CryptoEnabled() bool {
	return c.CryptoProviderKey != "" && c.BackendCallbackBaseURL != ""
}
func (c Config) EmailEnabled() bool { return c.EmailProviderKey != "" }

// Warnings lists every degraded-mode condition of this configuration.
func (c Config) Warnings() []string {
	var w []string
	if !c.CardEnabled() {
		w = append(w, "STRIPE_SECRET_KEY not set: card payments disabled")
	} else if c.CardWebhookSecret == "" {
		w = append(w, "STRIPE_WEBHOOK_SECRET not set: card webhooks rejected, session query only")
	}
	if c.CryptoProviderKey == "" {
		w = append(w, "NOWPAYMENTS_API_KEY not set: crypto payments disabled")
	} else if c.BackendCallbackBaseURL == "" {
		w = append(w, "BACKEND_URL not set: crypto payments disabled (no callback URL)")
	}
	if c.CryptoEnabled() && c.CryptoIPNSecret == "" {
		w = append(w, "NOWPAYMENTS_IPN_SECRET not set: crypto webhooks accepted unsigned")
	}
	if !c.EmailEnabled() {
		w = append(w, "SENDGRID_API_KEY not set: email notifications disabled")
	}
	if c.NotificationsQueue == "" {
		w = append(w, "NOTIFICATIONS_QUEUE_URL not set: notifications dispatched in-process")
	}
	if c.DeliveriesTable == "" {
		w = append(w, "WEBHOOK_DELIVERIES_TABLE not set: webhook delivery log disabled")
	}
	return w
}

// LogWarnings writes each degraded-mode warning.
func (c Config) LogWarnings(log *slog.Logger) {
	for _, w := range c.Warnings() {
		log.Warn("degraded mode", "reason", w)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
