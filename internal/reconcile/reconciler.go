// Package reconcile applies normalized lifecycle events to stored orders. It is the single
// path by which webhooks, the card session-status query and operator actions change an order.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
)

// ErrOrderNotFound is returned when an event names an order that does not exist.
var ErrOrderNotFound = errors.New("order not found")

const defaultMaxAttempts = 5

// OrderStore is the part of the order store the reconciler needs.
type OrderStore interface {
	Get(ctx context.Context, orderNumber string) (*orders.Order, error)
	ApplyTransition(ctx context.Context, current orders.Order, d orders.Decision) (*orders.Order, error)
}

// Notifier receives the effects of a committed transition. Implementations must not block on
// delivery and must not report delivery failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, o orders.Order, effects []orders.Effect)
}

// DeliveryLog remembers which provider notifications were already reconciled.
type DeliveryLog interface {
	Begin(ctx context.Context, key, orderNumber string) (*idempotency.DeliveryRecord, error)
	MarkDone(ctx context.Context, key, outcome string, attempts int) error
	MarkFailed(ctx context.Context, key, note string, attempts int) error
}

// Result reports what an Apply did.
type Result struct {
	OrderNumber string
	Outcome     orders.Outcome
	// Order is the state after the call; nil only when the order was never loaded.
	Order  *orders.Order
	Reason string
	// Replayed is true when the delivery log short-circuited a notification seen before.
	Replayed bool
}

// Reconciler is safe for concurrent use; per-order serialization comes from the store's
// conditional version check.
type Reconciler struct {
	store       OrderStore
	notifier    Notifier
	deliveries  DeliveryLog
	metrics     *aws.Metrics
	policy      orders.CancellationPolicy
	log         *slog.Logger
	maxAttempts int
	nowFunc     func() time.Time
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithDeliveryLog enables the webhook delivery fast path.
func WithDeliveryLog(l DeliveryLog) Option {
	return func(r *Reconciler) { r.deliveries = l }
}

// WithMetrics publishes operator counters.
func WithMetrics(m *aws.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithMaxAttempts bounds reload-and-retry after a version conflict.
func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func NewReconciler(store OrderStore, notifier Notifier, policy orders.CancellationPolicy, log *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		notifier:    notifier,
		policy:      policy,
		log:         log,
		maxAttempts: defaultMaxAttempts,
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply loads the order, decides, and commits the decision conditionally on the version it
// read. A lost race reloads and decides again. Conflicting events are a successful outcome;
// only ErrOrderNotFound and store failures are returned as errors.
func (r *Reconciler) Apply(ctx context.Context, orderNumber string, ev orders.Event) (Result, error) {
	log := r.log.With("order_number", orderNumber, "event", string(ev.Kind))

	for attempt := 1; ; attempt++ {
		current, err := r.store.Get(ctx, orderNumber)
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				log.Warn("event for unknown order")
				r.metrics.Count(ctx, "OrderNotFound", "Event", string(ev.Kind))
				return Result{OrderNumber: orderNumber}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
			}
			return Result{OrderNumber: orderNumber}, fmt.Errorf("load order: %w", err)
		}

		d := orders.Transition(current.State(), ev, r.policy, r.nowFunc())
		res := Result{OrderNumber: orderNumber, Outcome: d.Outcome, Order: current, Reason: d.Reason}

		switch d.Outcome {
		case orders.OutcomeAlreadyApplied:
			log.Info("event already applied", "reason", d.Reason)
			return res, nil
		case orders.OutcomeConflict:
			log.Warn("conflicting event ignored",
				"reason", d.Reason,
				"order_status", string(current.Status),
				"payment_status", string(current.PaymentStatus))
			r.metrics.Count(ctx, "ConflictingTransition", "Event", string(ev.Kind))
			return res, nil
		}

		updated, err := r.store.ApplyTransition(ctx, *current, d)
		if err != nil {
			if errors.Is(err, orders.ErrVersionConflict) && attempt < r.maxAttempts {
				log.Debug("version conflict, reloading", "attempt", attempt)
				continue
			}
			if errors.Is(err, orders.ErrVersionConflict) {
				r.metrics.Count(ctx, "VersionRetriesExhausted", "Event", string(ev.Kind))
			}
			return res, fmt.Errorf("commit transition: %w", err)
		}

		res.Order = updated
		log.Info("transition applied",
			"from_order", string(d.From.Order), "to_order", string(d.To.Order),
			"from_payment", string(d.From.Payment), "to_payment", string(d.To.Payment),
			"version", updated.Version)

		// persistence first, then enqueue; a notify failure never undoes the commit
		if len(d.Effects) > 0 && r.notifier != nil {
			r.notifier.Notify(ctx, *updated, d.Effects)
		}
		return res, nil
	}
}

// ApplyDelivery is Apply for a provider notification identified by key. When a delivery log is
// configured, a notification already reconciled returns its stored outcome without touching the
// order. The log is an optimization: its own failures are logged and the event applied anyway.
func (r *Reconciler) ApplyDelivery(ctx context.Context, key, orderNumber string, ev orders.Event) (Result, error) {
	if r.deliveries == nil || key == "" {
		return r.Apply(ctx, orderNumber, ev)
	}

	attempts := 1
	rec, err := r.deliveries.Begin(ctx, key, orderNumber)
	if err != nil {
		r.log.Warn("delivery log unavailable", "delivery_key", key, "err", err)
		return r.Apply(ctx, orderNumber, ev)
	}
	if rec.Done() {
		r.log.Info("duplicate delivery skipped", "delivery_key", key, "order_number", orderNumber, "outcome", rec.Outcome)
		return Result{OrderNumber: orderNumber, Outcome: orders.OutcomeAlreadyApplied, Reason: "delivery already reconciled", Replayed: true}, nil
	}
	if rec != nil {
		attempts = rec.Attempts + 1
	}

	res, applyErr := r.Apply(ctx, orderNumber, ev)
	if applyErr != nil {
		if err := r.deliveries.MarkFailed(ctx, key, applyErr.Error(), attempts); err != nil {
			r.log.Warn("delivery log mark failed", "delivery_key", key, "err", err)
		}
		return res, applyErr
	}
	if err := r.deliveries.MarkDone(ctx, key, res.Outcome.String(), attempts); err != nil {
		r.log.Warn("delivery log mark done", "delivery_key", key, "err", err)
	}
	return res, nil
}
