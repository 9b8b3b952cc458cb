package payments

import (
	"testing"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

func TestCardSessionStatus_Event(t *testing.T) {
	tests := []struct {
		status, payment string
		kind            orders.EventKind
	}{
		{"complete", "paid", orders.EventPaymentConfirmed},
		{"complete", "no_payment_required", orders.EventPaymentConfirmed},
		{"expired", "unpaid", orders.EventPaymentFailed},
		{"open", "unpaid", orders.EventStatusNote},
		{"complete", "unpaid", orders.EventStatusNote},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.payment, func(t *testing.T) {
			ev := CardSessionStatus{Status: tt.status, PaymentStatus: tt.payment}.Event()
			assert.Equal(t, tt.kind, ev.Kind)
		})
	}
}

func signedStripePayload(t *testing.T, payload, secret string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestParseStripeWebhook(t *testing.T) {
	const secret = "whsec_test"

	t.Run("completed session", func(t *testing.T) {
		header, body := signedStripePayload(t, `{
			"id": "evt_1", "object": "event", "type": "checkout.session.completed", "api_version": "2020-08-27",
			"data": {"object": {"id": "cs_1", "object": "checkout.session", "status": "complete",
				"payment_status": "paid", "metadata": {"orderNumber": "ORD-7"}}}
		}`, secret)

		wh, err := ParseStripeWebhook(body, header, secret)
		require.NoError(t, err)
		assert.True(t, wh.Relevant)
		assert.Equal(t, "evt_1", wh.EventID)
		assert.Equal(t, "ORD-7", wh.OrderNumber)
		assert.Equal(t, orders.EventPaymentConfirmed, wh.Event.Kind)
	})

	t.Run("expired session falls back to client reference", func(t *testing.T) {
		header, body := signedStripePayload(t, `{
			"id": "evt_2", "object": "event", "type": "checkout.session.expired",
			"data": {"object": {"id": "cs_2", "object": "checkout.session", "status": "expired",
				"payment_status": "unpaid", "client_reference_id": "ORD-8"}}
		}`, secret)

		wh, err := ParseStripeWebhook(body, header, secret)
		require.NoError(t, err)
		assert.Equal(t, "ORD-8", wh.OrderNumber)
		assert.Equal(t, orders.EventPaymentFailed, wh.Event.Kind)
	})

	t.Run("unrelated event type", func(t *testing.T) {
		header, body := signedStripePayload(t, `{"id": "evt_3", "object": "event", "type": "customer.created", "data": {"object": {}}}`, secret)

		wh, err := ParseStripeWebhook(body, header, secret)
		require.NoError(t, err)
		assert.False(t, wh.Relevant)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, body := signedStripePayload(t, `{"id": "evt_4", "object": "event", "type": "checkout.session.completed"}`, secret)

		_, err := ParseStripeWebhook(body, "t=1,v1=deadbeef", secret)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}
