package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// CardProvider is the card processor contract.
type CardProvider interface {
	CreateSession(ctx context.Context, req CardSessionRequest) (CardSessionHandle, error)
	GetSession(ctx context.Context, sessionID string) (CardSessionStatus, error)
}

// CardLine is one priced unit line of a card session.
type CardLine struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CardSessionRequest struct {
	OrderNumber   string
	Currency      string
	Lines         []CardLine
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

type CardSessionHandle struct {
	SessionID   string
	RedirectURL string
}

// CardSessionStatus is what the processor reports for a session.
type CardSessionStatus struct {
	SessionID     string            `json:"sessionId"`
	Status        string            `json:"status"`        // open | complete | expired
	PaymentStatus string            `json:"paymentStatus"` // paid | unpaid | no_payment_required
	CustomerEmail string            `json:"customerEmail,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// OrderNumber returns the order this session was created for.
func (s CardSessionStatus) OrderNumber() string {
	return s.Metadata["orderNumber"]
}

// Event normalizes the session state into a lifecycle event.
func (s CardSessionStatus) Event() orders.Event {
	switch {
	case s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid),
		s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired):
		return orders.PaymentConfirmed("", "", "Card payment confirmed")
	case s.Status == string(stripe.CheckoutSessionStatusExpired):
		return orders.PaymentFailedEvent("Card checkout session expired")
	default:
		return orders.StatusNote(fmt.Sprintf("Card session %s, payment %s", s.Status, s.PaymentStatus))
	}
}

// StripeProvider creates and reads Stripe Checkout sessions.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider returns a provider whose HTTP calls are bounded by timeout.
func NewStripeProvider(secretKey string, timeout time.Duration) *StripeProvider {
	backends := stripe.NewBackends(&http.Client{Timeout: timeout})
	return &StripeProvider{api: client.New(secretKey, backends)}
}

func (p *StripeProvider) CreateSession(ctx context.Context, req CardSessionRequest) (CardSessionHandle, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, l := range req.Lines {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
				},
				UnitAmount: stripe.Int64(l.UnitAmount),
			},
			Quantity: stripe.Int64(l.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		CustomerEmail:      stripe.String(req.CustomerEmail),
		ClientReferenceID:  stripe.String(req.OrderNumber),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CardSessionHandle{}, fmt.Errorf("create checkout session: %w", err)
	}
	return CardSessionHandle{SessionID: s.ID, RedirectURL: s.URL}, nil
}

func (p *StripeProvider) GetSession(ctx context.Context, sessionID string) (CardSessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return CardSessionStatus{}, fmt.Errorf("get checkout session: %w", err)
	}
	return sessionStatus(s), nil
}

func sessionStatus(s *stripe.CheckoutSession) CardSessionStatus {
	return CardSessionStatus{
		SessionID:     s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
}

// CardWebhook is a verified, normalized Stripe notification.
type CardWebhook struct {
	EventID     string
	Type        string
	OrderNumber string
	Event       orders.Event
	// Relevant is false for event types that do not concern checkout sessions.
	Relevant bool
}

// ParseStripeWebhook verifies the Stripe-Signature header and normalizes checkout session events.
func ParseStripeWebhook(payload []byte, signature, secret string) (CardWebhook, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return CardWebhook{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := CardWebhook{EventID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.expired", "checkout.session.async_payment_failed":
	default:
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return CardWebhook{}, fmt.Errorf("decode checkout session: %w", err)
	}
	status := sessionStatus(&s)
	out.OrderNumber = status.OrderNumber()
	if out.OrderNumber == "" {
		out.OrderNumber = s.ClientReferenceID
	}
	out.Relevant = true

	switch out.Type {
	case "checkout.session.async_payment_failed":
		out.Event = orders.PaymentFailedEvent("Card payment failed")
	case "checkout.session.expired":
		out.Event = orders.PaymentFailedEvent("Card checkout session expired")
	default:
		out.Event = status.Event()
	}
	return out, nil
}
