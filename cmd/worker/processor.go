package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/notify"
)

// Dispatcher sends the messages for one job; *notify.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job notify.Job) error
}

// JobLog claims a job id before its first attempt; *idempotency.Store satisfies it.
type JobLog interface {
	Begin(ctx context.Context, key, orderNumber string) (*idempotency.DeliveryRecord, error)
	MarkDone(ctx context.Context, key, outcome string, attempts int) error
	MarkFailed(ctx context.Context, key, note string, attempts int) error
}

// Processor handles SQS notification messages. Each job gets at most one delivery attempt:
// failures are logged and the message is still acknowledged.
type Processor struct {
	dispatcher Dispatcher
	jobs       JobLog
	log        *slog.Logger
}

// NewProcessor creates a processor. jobs may be nil, in which case a redelivered SQS message
// is attempted again.
func NewProcessor(d Dispatcher, jobs JobLog, log *slog.Logger) *Processor {
	return &Processor{dispatcher: d, jobs: jobs, log: log}
}

// Handle receives an SQS batch event and processes each message. It never returns an error,
// so SQS does not redeliver.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.log.Info("received notification batch", "count", len(ev.Records))
	for _, rec := range ev.Records {
		p.processMessage(ctx, rec)
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) {
	var job notify.Job
	if err := json.Unmarshal([]byte(rec.Body), &job); err != nil {
		p.log.Error("invalid message body", "message_id", rec.MessageId, "err", err)
		return
	}
	log := p.log.With("message_id", rec.MessageId, "job_id", job.ID, "kind", string(job.Kind), "order_number", job.Order.OrderNumber)

	key := idempotency.DeliveryKey("notification", job.ID)
	if p.jobs != nil && job.ID != "" {
		prev, err := p.jobs.Begin(ctx, key, job.Order.OrderNumber)
		if err != nil {
			log.Warn("job log unavailable", "err", err)
		} else if prev != nil {
			log.Info("job already attempted, skipping", "status", prev.Status)
			return
		}
	}

	if err := p.dispatcher.Dispatch(ctx, job); err != nil {
		// the dispatcher already logged and counted the failure
		p.mark(ctx, log, key, err)
		return
	}
	p.mark(ctx, log, key, nil)
	log.Info("job processed")
}

func (p *Processor) mark(ctx context.Context, log *slog.Logger, key string, dispatchErr error) {
	if p.jobs == nil {
		return
	}
	var err error
	if dispatchErr != nil {
		err = p.jobs.MarkFailed(ctx, key, dispatchErr.Error(), 1)
	} else {
		err = p.jobs.MarkDone(ctx, key, "sent", 1)
	}
	if err != nil {
		log.Warn("job log update failed", "err", err)
	}
}
