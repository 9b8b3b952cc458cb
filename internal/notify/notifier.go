package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
)

// Publisher is the queue transport; *aws.Publisher satisfies it.
type Publisher interface {
	Send(ctx context.Context, messageBody string, attributes map[string]string) error
}

// QueueNotifier enqueues jobs for the worker. Enqueue failures are logged and counted only.
type QueueNotifier struct {
	pub     Publisher
	metrics *aws.Metrics
	log     *slog.Logger
	nowFunc func() time.Time
}

func NewQueueNotifier(pub Publisher, metrics *aws.Metrics, log *slog.Logger) *QueueNotifier {
	return &QueueNotifier{pub: pub, metrics: metrics, log: log, nowFunc: time.Now}
}

func (n *QueueNotifier) Notify(ctx context.Context, o orders.Order, effects []orders.Effect) {
	// the request may finish before the queue call does
	ctx = context.WithoutCancel(ctx)
	for _, job := range JobsFor(o, effects, n.nowFunc()) {
		body, err := json.Marshal(job)
		if err != nil {
			n.log.Error("marshal notification job", "order_number", o.OrderNumber, "err", err)
			continue
		}
		err = n.pub.Send(ctx, string(body), map[string]string{
			"kind":         string(job.Kind),
			"order_number": o.OrderNumber,
			"job_id":       job.ID,
		})
		if err != nil {
			n.log.Error("enqueue notification", "job_id", job.ID, "kind", string(job.Kind), "order_number", o.OrderNumber, "err", err)
			n.metrics.Count(ctx, "NotificationEnqueueFailed", "Kind", string(job.Kind))
			continue
		}
		n.log.Info("notification enqueued", "job_id", job.ID, "kind", string(job.Kind), "order_number", o.OrderNumber)
	}
}

// AsyncNotifier dispatches in a background goroutine when no queue is configured.
type AsyncNotifier struct {
	dispatcher *Dispatcher
	timeout    time.Duration
	wg         sync.WaitGroup
	nowFunc    func() time.Time
}

func NewAsyncNotifier(d *Dispatcher, timeout time.Duration) *AsyncNotifier {
	return &AsyncNotifier{dispatcher: d, timeout: timeout, nowFunc: time.Now}
}

func (n *AsyncNotifier) Notify(ctx context.Context, o orders.Order, effects []orders.Effect) {
	jobs := JobsFor(o, effects, n.nowFunc())
	if len(jobs) == 0 {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		for _, job := range jobs {
			// failures are logged by the dispatcher
			_ = n.dispatcher.Dispatch(dctx, job)
		}
	}()
}

// Wait blocks until every dispatch started so far has finished.
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}
