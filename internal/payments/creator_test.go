package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws/awstest"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersTable = "orders"

type fakeCard struct {
	mu      sync.Mutex
	err     error
	block   bool
	reqs    []CardSessionRequest
	session CardSessionStatus
}

func (f *fakeCard) CreateSession(ctx context.Context, req CardSessionRequest) (CardSessionHandle, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return CardSessionHandle{}, ctx.Err()
	}
	if f.err != nil {
		return CardSessionHandle{}, f.err
	}
	return CardSessionHandle{SessionID: "cs_test_1", RedirectURL: "https://checkout.example/cs_test_1"}, nil
}

func (f *fakeCard) GetSession(ctx context.Context, id string) (CardSessionStatus, error) {
	if f.err != nil {
		return CardSessionStatus{}, f.err
	}
	return f.session, nil
}

type fakeCrypto struct {
	err  error
	reqs []CryptoPaymentRequest
}

func (f *fakeCrypto) CreatePayment(ctx context.Context, req CryptoPaymentRequest) (CryptoPaymentHandle, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return CryptoPaymentHandle{}, f.err
	}
	return CryptoPaymentHandle{
		PaymentID:   "5077125051",
		PayAddress:  "bc1qexampleaddress",
		PayAmount:   decimal.RequireFromString("0.00102"),
		PayCurrency: "btc",
	}, nil
}

func (f *fakeCrypto) GetPayment(ctx context.Context, id string) (CryptoPaymentStatus, error) {
	return CryptoPaymentStatus{PaymentID: id, PaymentStatus: "waiting"}, f.err
}

func (f *fakeCrypto) Currencies(ctx context.Context) ([]string, error) {
	return []string{"btc", "eth", "usdttrc20"}, f.err
}

func checkoutInput(number string) CheckoutInput {
	return CheckoutInput{
		OrderNumber: number,
		Customer:    orders.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
		Items:       []orders.LineItem{{ProductName: "Hoodie", Quantity: 1, UnitPrice: 4500}},
		ShippingAddress: orders.Address{
			Line1: "1 High Street", City: "London", State: "Greater London", PostalCode: "N1 1AA", Country: "GB",
		},
		Amounts: orders.Amounts{Subtotal: 4500, Shipping: 500, Tax: 0, Total: 5000},
	}
}

func newTestCreator(t *testing.T, card CardProvider, crypto CryptoProvider) (*Creator, *orders.Store, *awstest.Dynamo) {
	t.Helper()
	mock := awstest.NewDynamo()
	mock.DefineTable(ordersTable, "order_number")
	store := orders.NewStore(mock, ordersTable)
	c := NewCreator(store, card, crypto, CreatorConfig{
		Currency:        "GBP",
		FrontendBaseURL: "https://shop.example",
		CallbackBaseURL: "https://api.example",
		Timeout:         200 * time.Millisecond,
		Policy:          orders.CancelPendingOnly,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, store, mock
}

func TestCreateCardSession_PersistsPendingOrderWithSession(t *testing.T) {
	card := &fakeCard{}
	c, store, _ := newTestCreator(t, card, nil)
	ctx := context.Background()

	out, err := c.CreateCardSession(ctx, checkoutInput("ORD-100"))
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", out.SessionID)
	assert.Equal(t, "https://checkout.example/cs_test_1", out.RedirectURL)

	got, err := store.Get(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.Equal(t, orders.PaymentPending, got.PaymentStatus)
	assert.Equal(t, orders.MethodCard, got.PaymentMethod)
	assert.Equal(t, "cs_test_1", got.ProviderRef)
	assert.Equal(t, "GBP", got.Currency)
	require.Len(t, got.StatusHistory, 1)

	require.Len(t, card.reqs, 1)
	req := card.reqs[0]
	assert.Equal(t, "gbp", req.Currency)
	assert.Equal(t, "https://shop.example/payment-success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://shop.example/checkout", req.CancelURL)
	assert.Equal(t, "ORD-100", req.Metadata["orderNumber"])
	require.Len(t, req.Lines, 2)
	assert.Equal(t, CardLine{Name: "Shipping", UnitAmount: 500, Quantity: 1}, req.Lines[1])
}

func TestCreateCardSession_ProviderFailureRollsBack(t *testing.T) {
	card := &fakeCard{err: errors.New("connection reset")}
	c, _, mock := newTestCreator(t, card, nil)
	ctx := context.Background()

	_, err := c.CreateCardSession(ctx, checkoutInput("ORD-101"))
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 0, mock.Len(ordersTable))

	// the same order number can be retried
	card.err = nil
	out, err := c.CreateCardSession(ctx, checkoutInput("ORD-101"))
	require.NoError(t, err)
	assert.Equal(t, "ORD-101", out.OrderNumber)
	assert.Equal(t, 1, mock.Len(ordersTable))
}

func TestCreateCardSession_TimeoutRollsBack(t *testing.T) {
	card := &fakeCard{block: true}
	c, _, mock := newTestCreator(t, card, nil)

	_, err := c.CreateCardSession(context.Background(), checkoutInput("ORD-102"))
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 0, mock.Len(ordersTable))
}

func TestCreateCardSession_DuplicateOrderNumber(t *testing.T) {
	card := &fakeCard{}
	c, _, _ := newTestCreator(t, card, nil)
	ctx := context.Background()

	_, err := c.CreateCardSession(ctx, checkoutInput("ORD-103"))
	require.NoError(t, err)

	_, err = c.CreateCardSession(ctx, checkoutInput("ORD-103"))
	require.ErrorIs(t, err, orders.ErrDuplicateOrderNumber)
	assert.Len(t, card.reqs, 1, "provider must not be called for a duplicate")
}

func TestCreate_InvalidAmounts(t *testing.T) {
	card := &fakeCard{}
	c, _, mock := newTestCreator(t, card, &fakeCrypto{})
	ctx := context.Background()

	zero := checkoutInput("ORD-104")
	zero.Amounts = orders.Amounts{}
	_, err := c.CreateCardSession(ctx, zero)
	require.ErrorIs(t, err, ErrInvalidOrderAmount)

	negative := checkoutInput("ORD-105")
	negative.Items[0].UnitPrice = -1
	_, err = c.CreateCryptoPayment(ctx, negative, "btc")
	require.ErrorIs(t, err, ErrInvalidOrderAmount)

	assert.Equal(t, 0, mock.Len(ordersTable))
	assert.Empty(t, card.reqs)
}

func TestCreate_ValidationError(t *testing.T) {
	c, _, _ := newTestCreator(t, &fakeCard{}, nil)
	in := checkoutInput("ORD-106")
	in.Customer.Email = "not-an-email"

	_, err := c.CreateCardSession(context.Background(), in)
	require.ErrorIs(t, err, orders.ErrValidation)
}

func TestCreate_DisabledProvider(t *testing.T) {
	c, _, mock := newTestCreator(t, nil, nil)
	ctx := context.Background()

	_, err := c.CreateCardSession(ctx, checkoutInput("ORD-107"))
	require.ErrorIs(t, err, ErrProviderUnavailable)
	_, err = c.CreateCryptoPayment(ctx, checkoutInput("ORD-107"), "")
	require.ErrorIs(t, err, ErrProviderUnavailable)
	_, err = c.CryptoCurrencies(ctx)
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 0, mock.Len(ordersTable))
}

func TestCreateCryptoPayment_PersistsHandle(t *testing.T) {
	crypto := &fakeCrypto{}
	c, store, _ := newTestCreator(t, nil, crypto)
	ctx := context.Background()

	out, err := c.CreateCryptoPayment(ctx, checkoutInput("ORD-200"), "btc")
	require.NoError(t, err)
	assert.Equal(t, "5077125051", out.PaymentID)
	assert.Equal(t, "0.00102", out.PayAmount)

	require.Len(t, crypto.reqs, 1)
	req := crypto.reqs[0]
	assert.True(t, decimal.RequireFromString("50").Equal(req.PriceAmount))
	assert.Equal(t, "GBP", req.PriceCurrency)
	assert.Equal(t, "ORD-200", req.OrderID)
	assert.Equal(t, "https://api.example/api/webhooks/nowpayments", req.CallbackURL)
	assert.Equal(t, "Order #ORD-200 - 1 items", req.OrderDescription)

	got, err := store.Get(ctx, "ORD-200")
	require.NoError(t, err)
	assert.Equal(t, orders.MethodCrypto, got.PaymentMethod)
	assert.Equal(t, "5077125051", got.ProviderRef)
	assert.Equal(t, "bc1qexampleaddress", got.PayAddress)
	assert.Equal(t, "btc", got.PayCurrency)
	assert.Equal(t, "Crypto payment initiated", got.StatusHistory[0].Note)
}

func TestCreateCryptoPayment_ProviderFailureRollsBack(t *testing.T) {
	c, _, mock := newTestCreator(t, nil, &fakeCrypto{err: errors.New("status 500")})

	_, err := c.CreateCryptoPayment(context.Background(), checkoutInput("ORD-201"), "btc")
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 0, mock.Len(ordersTable))
}

func TestCreateCryptoPayment_AttachFailureStillReturnsHandle(t *testing.T) {
	c, store, mock := newTestCreator(t, nil, &fakeCrypto{})
	mock.FailOn = func(op, table string) error {
		if op == "UpdateItem" {
			return awstest.ErrThrottled
		}
		return nil
	}
	ctx := context.Background()

	out, err := c.CreateCryptoPayment(ctx, checkoutInput("ORD-202"), "")
	require.NoError(t, err)
	assert.Equal(t, "5077125051", out.PaymentID)

	mock.FailOn = nil
	got, err := store.Get(ctx, "ORD-202")
	require.NoError(t, err)
	assert.Empty(t, got.ProviderRef)
	assert.Equal(t, orders.PaymentPending, got.PaymentStatus)
}

func TestLookups(t *testing.T) {
	card := &fakeCard{session: CardSessionStatus{SessionID: "cs_1", Status: "complete", PaymentStatus: "paid"}}
	c, _, _ := newTestCreator(t, card, &fakeCrypto{})
	ctx := context.Background()

	st, err := c.CardSessionStatus(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "paid", st.PaymentStatus)

	p, err := c.CryptoPaymentStatus(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, "waiting", p.PaymentStatus)

	list, err := c.CryptoCurrencies(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, "btc")

	card.err = errors.New("boom")
	_, err = c.CardSessionStatus(ctx, "cs_1")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}
