package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/config"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/handlers"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/logging"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/notify"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/payments"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/validation"
)

func setupRouter(cfg config.Config, clients *aws.AWSClients, log *slog.Logger) *gin.Engine {
	metrics := aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, log)
	store := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)

	var card payments.CardProvider
	if cfg.CardEnabled() {
		card = payments.NewStripeProvider(cfg.CardProviderKey, cfg.ProviderTimeout)
	}
	var crypto payments.CryptoProvider
	if cfg.CryptoEnabled() {
		crypto = payments.NewNowPayments(cfg.CryptoProviderURL, cfg.CryptoProviderKey, cfg.ProviderTimeout)
	}
	creator := payments.NewCreator(store, card, crypto, payments.CreatorConfig{
		Currency:        cfg.BaseCurrency,
		FrontendBaseURL: cfg.FrontendBaseURL,
		CallbackBaseURL: cfg.BackendCallbackBaseURL,
		Timeout:         cfg.ProviderTimeout,
		Policy:          cfg.CancellationPolicy,
	}, log)

	var notifier reconcile.Notifier
	if cfg.NotificationsQueue != "" {
		notifier = notify.NewQueueNotifier(aws.NewPublisher(clients.SQS, cfg.NotificationsQueue), metrics, log)
	} else {
		sender := notify.SenderFor(cfg.EmailProviderKey, cfg.EmailFromAddress, cfg.StoreName, log)
		dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
			StoreName:    cfg.StoreName,
			AdminAddress: cfg.EmailFromAddress,
		}, metrics, log)
		notifier = notify.NewAsyncNotifier(dispatcher, cfg.ProviderTimeout)
	}

	opts := []reconcile.Option{reconcile.WithMetrics(metrics)}
	if cfg.DeliveriesTable != "" {
		opts = append(opts, reconcile.WithDeliveryLog(idempotency.NewStore(clients.DynamoDB, cfg.DeliveriesTable, cfg.DeliveryTTL)))
	}
	rec := reconcile.NewReconciler(store, notifier, cfg.CancellationPolicy, log, opts...)

	return handlers.NewRouter(handlers.HandlerConfig{
		Checkout:          creator,
		Reconciler:        rec,
		Orders:            store,
		Validator:         validation.New(),
		Log:               log,
		CardWebhookSecret: cfg.CardWebhookSecret,
		CryptoIPNSecret:   cfg.CryptoIPNSecret,
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)
	cfg.LogWarnings(log)

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	r := setupRouter(cfg, clients, log)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + getenv("PORT", "8080")
		log.Info("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			log.Error("failed to run local server", "err", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
