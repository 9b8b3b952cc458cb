package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
)

// OrderStore is the part of the order store the creator needs.
type OrderStore interface {
	Create(ctx context.Context, o orders.Order) error
	AttachPayment(ctx context.Context, orderNumber string, ref orders.PaymentRef) (*orders.Order, error)
	DeletePlaceholder(ctx context.Context, orderNumber string) error
}

// CreatorConfig holds deployment settings for checkout.
type CreatorConfig struct {
	Currency        string
	FrontendBaseURL string
	CallbackBaseURL string
	Timeout         time.Duration
	Policy          orders.CancellationPolicy
}

// SuccessURL is where the card processor sends the browser after payment.
func (c CreatorConfig) SuccessURL() string {
	return c.FrontendBaseURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where the card processor sends the browser when the customer backs out.
func (c CreatorConfig) CancelURL() string {
	return c.FrontendBaseURL + "/checkout"
}

// CallbackURL is the crypto IPN endpoint.
func (c CreatorConfig) CallbackURL() string {
	return c.CallbackBaseURL + "/api/webhooks/nowpayments"
}

// CheckoutInput is the order snapshot submitted at checkout.
type CheckoutInput struct {
	OrderNumber     string
	Customer        orders.Customer
	Items           []orders.LineItem
	ShippingAddress orders.Address
	Amounts         orders.Amounts
}

// CardSession is returned to the client to redirect the browser.
type CardSession struct {
	OrderNumber string `json:"orderNumber"`
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"url"`
}

// CryptoPayment is returned to the client to display the pay address.
type CryptoPayment struct {
	OrderNumber string `json:"orderNumber"`
	PaymentID   string `json:"paymentId"`
	PayAddress  string `json:"payAddress"`
	PayAmount   string `json:"payAmount"`
	PayCurrency string `json:"payCurrency"`
	PaymentURL  string `json:"paymentUrl,omitempty"`
}

// Creator starts payments. Both flows share one insertion algorithm: a pending placeholder
// row is written first, the provider is called under a timeout, and the handle is attached
// on success or the placeholder rolled back on failure.
type Creator struct {
	store   OrderStore
	card    CardProvider
	crypto  CryptoProvider
	cfg     CreatorConfig
	log     *slog.Logger
	nowFunc func() time.Time
}

// NewCreator wires a creator. A nil provider disables that payment method.
func NewCreator(store OrderStore, card CardProvider, crypto CryptoProvider, cfg CreatorConfig, log *slog.Logger) *Creator {
	return &Creator{
		store:   store,
		card:    card,
		crypto:  crypto,
		cfg:     cfg,
		log:     log,
		nowFunc: time.Now,
	}
}

// CreateCardSession reserves the order and opens a card checkout session.
func (c *Creator) CreateCardSession(ctx context.Context, in CheckoutInput) (*CardSession, error) {
	if c.card == nil {
		return nil, fmt.Errorf("%w: card payments are not configured", ErrProviderUnavailable)
	}
	o, err := c.reserve(ctx, in, orders.MethodCard, "Card checkout started")
	if err != nil {
		return nil, err
	}

	lines := make([]CardLine, 0, len(o.Items)+1)
	for _, it := range o.Items {
		lines = append(lines, CardLine{Name: it.ProductName, UnitAmount: int64(it.UnitPrice), Quantity: it.Quantity})
	}
	if o.Amounts.Shipping > 0 {
		lines = append(lines, CardLine{Name: "Shipping", UnitAmount: int64(o.Amounts.Shipping), Quantity: 1})
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	handle, err := c.card.CreateSession(pctx, CardSessionRequest{
		OrderNumber:   o.OrderNumber,
		Currency:      strings.ToLower(o.Currency),
		Lines:         lines,
		SuccessURL:    c.cfg.SuccessURL(),
		CancelURL:     c.cfg.CancelURL(),
		CustomerEmail: o.Customer.Email,
		Metadata: map[string]string{
			"orderNumber":  o.OrderNumber,
			"customerName": o.Customer.Name,
			"total":        fmt.Sprint(int64(o.Amounts.Total)),
		},
	})
	if err != nil {
		return nil, c.rollback(ctx, o.OrderNumber, err)
	}

	c.attach(ctx, o.OrderNumber, orders.PaymentRef{ProviderRef: handle.SessionID, PaymentURL: handle.RedirectURL})
	c.log.Info("card session created", "order_number", o.OrderNumber, "session_id", handle.SessionID)
	return &CardSession{OrderNumber: o.OrderNumber, SessionID: handle.SessionID, RedirectURL: handle.RedirectURL}, nil
}

// CreateCryptoPayment reserves the order and creates a crypto payment. payCurrency may be
// empty to let the payer choose on the provider's page.
func (c *Creator) CreateCryptoPayment(ctx context.Context, in CheckoutInput, payCurrency string) (*CryptoPayment, error) {
	if c.crypto == nil {
		return nil, fmt.Errorf("%w: crypto payments are not configured", ErrProviderUnavailable)
	}
	o, err := c.reserve(ctx, in, orders.MethodCrypto, "Crypto payment initiated")
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	handle, err := c.crypto.CreatePayment(pctx, CryptoPaymentRequest{
		PriceAmount:      o.Amounts.Total.Decimal(),
		PriceCurrency:    o.Currency,
		PayCurrency:      payCurrency,
		OrderID:          o.OrderNumber,
		OrderDescription: fmt.Sprintf("Order #%s - %d items", o.OrderNumber, len(o.Items)),
		CallbackURL:      c.cfg.CallbackURL(),
	})
	if err != nil {
		return nil, c.rollback(ctx, o.OrderNumber, err)
	}

	c.attach(ctx, o.OrderNumber, orders.PaymentRef{
		ProviderRef: handle.PaymentID,
		PaymentURL:  handle.PaymentURL,
		PayAddress:  handle.PayAddress,
		PayAmount:   handle.PayAmount.String(),
		PayCurrency: handle.PayCurrency,
	})
	c.log.Info("crypto payment created", "order_number", o.OrderNumber, "payment_id", handle.PaymentID, "pay_currency", handle.PayCurrency)
	return &CryptoPayment{
		OrderNumber: o.OrderNumber,
		PaymentID:   handle.PaymentID,
		PayAddress:  handle.PayAddress,
		PayAmount:   handle.PayAmount.String(),
		PayCurrency: handle.PayCurrency,
		PaymentURL:  handle.PaymentURL,
	}, nil
}

// CardSessionStatus reads a session from the card processor.
func (c *Creator) CardSessionStatus(ctx context.Context, sessionID string) (CardSessionStatus, error) {
	if c.card == nil {
		return CardSessionStatus{}, fmt.Errorf("%w: card payments are not configured", ErrProviderUnavailable)
	}
	pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	st, err := c.card.GetSession(pctx, sessionID)
	if err != nil {
		return CardSessionStatus{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return st, nil
}

// CryptoPaymentStatus reads a payment from the crypto processor.
func (c *Creator) CryptoPaymentStatus(ctx context.Context, paymentID string) (CryptoPaymentStatus, error) {
	if c.crypto == nil {
		return CryptoPaymentStatus{}, fmt.Errorf("%w: crypto payments are not configured", ErrProviderUnavailable)
	}
	pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	st, err := c.crypto.GetPayment(pctx, paymentID)
	if err != nil {
		return CryptoPaymentStatus{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return st, nil
}

// CryptoCurrencies lists the pay currencies the crypto processor accepts.
func (c *Creator) CryptoCurrencies(ctx context.Context) ([]string, error) {
	if c.crypto == nil {
		return nil, fmt.Errorf("%w: crypto payments are not configured", ErrProviderUnavailable)
	}
	pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	list, err := c.crypto.Currencies(pctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return list, nil
}

func (c *Creator) reserve(ctx context.Context, in CheckoutInput, method orders.PaymentMethod, note string) (orders.Order, error) {
	if err := checkAmounts(in); err != nil {
		return orders.Order{}, err
	}
	o, err := orders.NewOrder(orders.NewOrderInput{
		OrderNumber:     in.OrderNumber,
		Customer:        in.Customer,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		Amounts:         in.Amounts,
		Currency:        c.cfg.Currency,
		PaymentMethod:   method,
		Note:            note,
	}, c.cfg.Policy, c.nowFunc())
	if err != nil {
		return orders.Order{}, err
	}
	if err := c.store.Create(ctx, o); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// rollback removes the placeholder so the client can retry with the same order number.
func (c *Creator) rollback(ctx context.Context, orderNumber string, cause error) error {
	// the request context may be the one that timed out
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.store.DeletePlaceholder(rctx, orderNumber); err != nil {
		c.log.Error("placeholder rollback failed", "order_number", orderNumber, "err", err)
	}
	c.log.Warn("payment provider call failed", "order_number", orderNumber, "err", cause)
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, cause)
}

// attach records the provider handle. The handle is still returned when this fails: the row
// exists and reconciliation correlates by order number.
func (c *Creator) attach(ctx context.Context, orderNumber string, ref orders.PaymentRef) {
	if _, err := c.store.AttachPayment(ctx, orderNumber, ref); err != nil {
		level := slog.LevelError
		if errors.Is(err, orders.ErrPaymentAlreadyAttached) {
			level = slog.LevelWarn
		}
		c.log.Log(ctx, level, "attach payment failed", "order_number", orderNumber, "provider_ref", ref.ProviderRef, "err", err)
	}
}

func checkAmounts(in CheckoutInput) error {
	if in.Amounts.Total <= 0 {
		return fmt.Errorf("%w: total must be positive, got %d", ErrInvalidOrderAmount, in.Amounts.Total)
	}
	for i, it := range in.Items {
		if it.UnitPrice < 0 || it.Quantity < 0 {
			return fmt.Errorf("%w: item %d has negative price or quantity", ErrInvalidOrderAmount, i)
		}
	}
	return nil
}
