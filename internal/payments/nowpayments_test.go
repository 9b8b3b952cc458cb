package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, canonical, secret string) string {
	t.Helper()
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyIPNSignature(t *testing.T) {
	const secret = "ipn-secret"
	body := []byte(`{"payment_status":"finished","payment_id":5077125051,"order_id":"ORD-1","pay_amount":0.00102,"actually_paid":0.00102,"order_description":"Order #ORD-1 - 1 items <gift>"}`)
	canonical := `{"actually_paid":0.00102,"order_description":"Order #ORD-1 - 1 items <gift>","order_id":"ORD-1","pay_amount":0.00102,"payment_id":5077125051,"payment_status":"finished"}`

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, VerifyIPNSignature(body, sign(t, canonical, secret), secret))
	})
	t.Run("upper case hex", func(t *testing.T) {
		sig := sign(t, canonical, secret)
		require.NoError(t, VerifyIPNSignature(body, strings.ToUpper(sig), secret))
	})
	t.Run("wrong secret", func(t *testing.T) {
		assert.ErrorIs(t, VerifyIPNSignature(body, sign(t, canonical, "other"), secret), ErrInvalidSignature)
	})
	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, VerifyIPNSignature(body, "", secret), ErrInvalidSignature)
	})
	t.Run("tampered", func(t *testing.T) {
		tampered := []byte(`{"payment_status":"finished","payment_id":5077125051,"order_id":"ORD-2","pay_amount":0.00102,"actually_paid":0.00102,"order_description":"Order #ORD-1 - 1 items <gift>"}`)
		assert.ErrorIs(t, VerifyIPNSignature(tampered, sign(t, canonical, secret), secret), ErrInvalidSignature)
	})
	t.Run("not json", func(t *testing.T) {
		assert.ErrorIs(t, VerifyIPNSignature([]byte("nope"), "abc", secret), ErrInvalidSignature)
	})
}

func TestCryptoNotification_Decode(t *testing.T) {
	var n CryptoNotification
	err := json.Unmarshal([]byte(`{"payment_id":5077125051,"payment_status":"partially_paid","order_id":"ORD-9","pay_amount":"0.5","actually_paid":null,"pay_currency":"ETH"}`), &n)
	require.NoError(t, err)
	assert.Equal(t, FlexID("5077125051"), n.PaymentID)
	assert.False(t, n.ActuallyPaid.Valid)

	err = json.Unmarshal([]byte(`{"payment_id":"abc","payment_status":"waiting","order_id":"ORD-9"}`), &n)
	require.NoError(t, err)
	assert.Equal(t, FlexID("abc"), n.PaymentID)
}

func TestCryptoNotification_Event(t *testing.T) {
	tests := []struct {
		name     string
		n        CryptoNotification
		kind     orders.EventKind
		settled  string
		currency string
	}{
		{
			name:     "finished uses actually paid",
			n:        CryptoNotification{PaymentStatus: "finished", PayAmount: decimal.RequireFromString("1.5"), ActuallyPaid: decimal.NewNullDecimal(decimal.RequireFromString("1.49")), PayCurrency: "ETH"},
			kind:     orders.EventPaymentConfirmed,
			settled:  "1.49",
			currency: "eth",
		},
		{
			name:     "confirmed falls back to pay amount",
			n:        CryptoNotification{PaymentStatus: "Confirmed", PayAmount: decimal.RequireFromString("0.002"), PayCurrency: "btc"},
			kind:     orders.EventPaymentConfirmed,
			settled:  "0.002",
			currency: "btc",
		},
		{name: "failed", n: CryptoNotification{PaymentStatus: "failed"}, kind: orders.EventPaymentFailed},
		{name: "expired", n: CryptoNotification{PaymentStatus: "expired"}, kind: orders.EventPaymentFailed},
		{name: "waiting", n: CryptoNotification{PaymentStatus: "waiting"}, kind: orders.EventStatusNote},
		{name: "partially paid", n: CryptoNotification{PaymentStatus: "partially_paid"}, kind: orders.EventStatusNote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := tt.n.Event()
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.settled, ev.SettledAmount)
			assert.Equal(t, tt.currency, ev.SettledCurrency)
			assert.NotEmpty(t, ev.Note)
		})
	}
}

func TestNowPayments_CreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment", r.URL.Path)
		assert.Equal(t, "np-key", r.Header.Get("x-api-key"))

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, 50.0, body["price_amount"])
		assert.Equal(t, "gbp", body["price_currency"])
		assert.Equal(t, "btc", body["pay_currency"])
		assert.Equal(t, "ORD-1", body["order_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_id":"5077125051","payment_status":"waiting","pay_address":"bc1q","pay_amount":0.00102,"pay_currency":"btc","order_id":"ORD-1","invoice_url":"https://nowpayments.io/payment/?iid=1"}`))
	}))
	defer srv.Close()

	c := NewNowPayments(srv.URL+"/", "np-key", time.Second)
	h, err := c.CreatePayment(context.Background(), CryptoPaymentRequest{
		PriceAmount:   decimal.RequireFromString("50.00"),
		PriceCurrency: "GBP",
		PayCurrency:   "BTC",
		OrderID:       "ORD-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "5077125051", h.PaymentID)
	assert.Equal(t, "bc1q", h.PayAddress)
	assert.Equal(t, "0.00102", h.PayAmount.String())
	assert.Equal(t, "https://nowpayments.io/payment/?iid=1", h.PaymentURL)
}

func TestNowPayments_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"amountTo is too small"}`))
	}))
	defer srv.Close()

	c := NewNowPayments(srv.URL, "np-key", time.Second)
	_, err := c.GetPayment(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestNowPayments_GetPaymentAndCurrencies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payment/42":
			_, _ = w.Write([]byte(`{"payment_id":42,"payment_status":"finished","pay_amount":1,"actually_paid":1,"pay_currency":"eth","order_id":"ORD-42"}`))
		case "/currencies":
			_, _ = w.Write([]byte(`{"currencies":["btc","eth"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewNowPayments(srv.URL, "np-key", time.Second)
	st, err := c.GetPayment(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", st.PaymentID)
	assert.Equal(t, "finished", st.PaymentStatus)
	assert.Equal(t, "ORD-42", st.OrderID)

	list, err := c.Currencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"btc", "eth"}, list)
}
