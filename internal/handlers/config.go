package handlers

import (
	"context"
	"log/slog"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/payments"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/reconcile"
)

// Checkout is the payment creation surface; *payments.Creator satisfies it.
type Checkout interface {
	CreateCardSession(ctx context.Context, in payments.CheckoutInput) (*payments.CardSession, error)
	CreateCryptoPayment(ctx context.Context, in payments.CheckoutInput, payCurrency string) (*payments.CryptoPayment, error)
	CardSessionStatus(ctx context.Context, sessionID string) (payments.CardSessionStatus, error)
	CryptoPaymentStatus(ctx context.Context, paymentID string) (payments.CryptoPaymentStatus, error)
	CryptoCurrencies(ctx context.Context) ([]string, error)
}

// Reconciler applies lifecycle events; *reconcile.Reconciler satisfies it.
type Reconciler interface {
	Apply(ctx context.Context, orderNumber string, ev orders.Event) (reconcile.Result, error)
	ApplyDelivery(ctx context.Context, key, orderNumber string, ev orders.Event) (reconcile.Result, error)
}

// OrderReader loads an order; *orders.Store satisfies it.
type OrderReader interface {
	Get(ctx context.Context, orderNumber string) (*orders.Order, error)
}

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Checkout   Checkout
	Reconciler Reconciler
	Orders     OrderReader
	Validator  *validatorv10.Validate
	Log        *slog.Logger

	// CardWebhookSecret verifies Stripe-Signature; card webhooks are refused without it.
	CardWebhookSecret string
	// CryptoIPNSecret verifies x-nowpayments-sig; unsigned IPNs are accepted without it.
	CryptoIPNSecret string
}
