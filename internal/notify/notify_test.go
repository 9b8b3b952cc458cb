package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws/awstest"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type captureSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *captureSender) Send(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paidOrder(t *testing.T) orders.Order {
	t.Helper()
	o, err := orders.NewOrder(orders.NewOrderInput{
		OrderNumber: "ORD-1001",
		Customer:    orders.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
		Items:       []orders.LineItem{{ProductName: "T-Shirt", Quantity: 2, UnitPrice: 2000}},
		ShippingAddress: orders.Address{
			Line1: "1 High Street", City: "London", State: "Greater London", PostalCode: "N1 1AA", Country: "GB",
		},
		Amounts:       orders.Amounts{Subtotal: 4000, Shipping: 1000, Tax: 0, Total: 5000},
		Currency:      "GBP",
		PaymentMethod: orders.MethodCard,
	}, orders.CancelPendingOnly, t0)
	require.NoError(t, err)
	o.Status = orders.StatusProcessing
	o.PaymentStatus = orders.PaymentSucceeded
	return o
}

func newDispatcher(sender Sender, cw *awstest.CloudWatch) *Dispatcher {
	return NewDispatcher(sender, DispatcherConfig{StoreName: "Infinite Clothing", AdminAddress: "orders@shop.example"},
		aws.NewMetrics(cw, "OrderPay", discard()), discard())
}

func TestJobsFor(t *testing.T) {
	o := paidOrder(t)
	jobs := JobsFor(o, []orders.Effect{orders.EffectConfirmation, orders.EffectStatusChange, "bogus"}, t0)
	require.Len(t, jobs, 2)
	assert.Equal(t, KindConfirmation, jobs[0].Kind)
	assert.Equal(t, KindStatusChange, jobs[1].Kind)
	assert.NotEmpty(t, jobs[0].ID)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
	assert.Empty(t, JobsFor(o, nil, t0))
}

func TestDispatch_Confirmation(t *testing.T) {
	sender := &captureSender{}
	d := newDispatcher(sender, &awstest.CloudWatch{})

	err := d.Dispatch(context.Background(), Job{ID: "j1", Kind: KindConfirmation, Order: paidOrder(t)})
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)

	customer := sender.sent[0]
	assert.Equal(t, "ada@example.com", customer.To)
	assert.Equal(t, "Order Confirmation - #ORD-1001", customer.Subject)
	assert.Contains(t, customer.HTML, "Ada Lovelace")
	assert.Contains(t, customer.HTML, "£50.00")
	assert.Contains(t, customer.HTML, "£40.00")
	assert.Contains(t, customer.HTML, "1 High Street")

	admin := sender.sent[1]
	assert.Equal(t, "orders@shop.example", admin.To)
	assert.Equal(t, "New Order #ORD-1001 - £50.00", admin.Subject)
}

func TestDispatch_StatusChangeWithTracking(t *testing.T) {
	sender := &captureSender{}
	d := newDispatcher(sender, &awstest.CloudWatch{})
	o := paidOrder(t)
	o.Status = orders.StatusShipped
	o.ShippingCarrier = "Royal Mail"
	o.TrackingNumber = "RM123456GB"

	require.NoError(t, d.Dispatch(context.Background(), Job{ID: "j2", Kind: KindStatusChange, Order: o}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Your order #ORD-1001 has shipped", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTML, "RM123456GB")
	assert.Contains(t, sender.sent[0].HTML, "Royal Mail")
}

func TestDispatch_Cancellation(t *testing.T) {
	sender := &captureSender{}
	d := newDispatcher(sender, &awstest.CloudWatch{})
	o := paidOrder(t)
	o.Status = orders.StatusCancelled
	o.StatusHistory = append(o.StatusHistory, orders.StatusEntry{Status: orders.StatusCancelled, Timestamp: t0, Note: "Out of stock"})

	require.NoError(t, d.Dispatch(context.Background(), Job{ID: "j3", Kind: KindCancellation, Order: o}))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].HTML, "Out of stock")
	assert.Contains(t, sender.sent[0].HTML, "refund")
}

func TestDispatch_SendFailureIsReportedAndCounted(t *testing.T) {
	sender := &captureSender{err: errors.New("connection refused")}
	cw := &awstest.CloudWatch{}
	d := newDispatcher(sender, cw)

	err := d.Dispatch(context.Background(), Job{ID: "j4", Kind: KindConfirmation, Order: paidOrder(t)})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, 2, cw.Count("NotificationDeliveryFailed"))
}

func TestDispatch_DisabledSender(t *testing.T) {
	cw := &awstest.CloudWatch{}
	d := newDispatcher(NewDisabledSender(discard()), cw)

	err := d.Dispatch(context.Background(), Job{ID: "j5", Kind: KindCancellation, Order: paidOrder(t)})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, ErrEmailDisabled)
	assert.Equal(t, 0, cw.Count("NotificationDeliveryFailed"))
}

func TestQueueNotifier_EnqueuesOneMessagePerEffect(t *testing.T) {
	q := &awstest.SQS{}
	n := NewQueueNotifier(aws.NewPublisher(q, "https://sqs.example/notifications"), nil, discard())
	o := paidOrder(t)

	n.Notify(context.Background(), o, []orders.Effect{orders.EffectConfirmation})

	bodies := q.Bodies()
	require.Len(t, bodies, 1)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &job))
	assert.Equal(t, KindConfirmation, job.Kind)
	assert.Equal(t, "ORD-1001", job.Order.OrderNumber)
	assert.Equal(t, orders.Money(5000), job.Order.Amounts.Total)
	assert.Equal(t, "confirmation", *q.Messages[0].MessageAttributes["kind"].StringValue)
}

func TestQueueNotifier_FailureIsSwallowed(t *testing.T) {
	q := &awstest.SQS{Err: errors.New("queue does not exist")}
	cw := &awstest.CloudWatch{}
	n := NewQueueNotifier(aws.NewPublisher(q, "https://sqs.example/notifications"), aws.NewMetrics(cw, "OrderPay", discard()), discard())

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), paidOrder(t), []orders.Effect{orders.EffectConfirmation})
	})
	assert.Equal(t, 1, cw.Count("NotificationEnqueueFailed"))
}

func TestAsyncNotifier_DispatchesAfterCallerContextEnds(t *testing.T) {
	sender := &captureSender{}
	n := NewAsyncNotifier(newDispatcher(sender, &awstest.CloudWatch{}), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, paidOrder(t), []orders.Effect{orders.EffectConfirmation})
	cancel()
	n.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.sent, 2)
}
