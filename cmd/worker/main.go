package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/config"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/logging"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)
	if !cfg.EmailEnabled() {
		log.Warn("degraded mode", "reason", "SENDGRID_API_KEY not set: email notifications disabled")
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}

	metrics := aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, log)
	sender := notify.SenderFor(cfg.EmailProviderKey, cfg.EmailFromAddress, cfg.StoreName, log)
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
		StoreName:    cfg.StoreName,
		AdminAddress: cfg.EmailFromAddress,
	}, metrics, log)

	var jobs JobLog
	if cfg.DeliveriesTable != "" {
		jobs = idempotency.NewStore(clients.DynamoDB, cfg.DeliveriesTable, cfg.DeliveryTTL)
	}
	p := NewProcessor(dispatcher, jobs, log)

	// If RUN_LOCAL=true, process a single simulated SQS event and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Error("LOCAL_SQS_BODY must hold a notification job")
			os.Exit(1)
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: body},
			},
		}
		_ = p.Handle(context.Background(), event)
		return
	}

	lambda.Start(p.Handle)
}
