package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/shopspring/decimal"
)

// CryptoProvider is the crypto processor contract.
type CryptoProvider interface {
	CreatePayment(ctx context.Context, req CryptoPaymentRequest) (CryptoPaymentHandle, error)
	GetPayment(ctx context.Context, paymentID string) (CryptoPaymentStatus, error)
	Currencies(ctx context.Context) ([]string, error)
}

type CryptoPaymentRequest struct {
	PriceAmount      decimal.Decimal
	PriceCurrency    string
	PayCurrency      string // empty lets the payer choose on the provider page
	OrderID          string
	OrderDescription string
	CallbackURL      string
}

type CryptoPaymentHandle struct {
	PaymentID   string
	PayAddress  string
	PayAmount   decimal.Decimal
	PayCurrency string
	PaymentURL  string
}

// CryptoPaymentStatus is the provider view of a payment.
type CryptoPaymentStatus struct {
	PaymentID     string          `json:"paymentId"`
	PaymentStatus string          `json:"paymentStatus"`
	PayAddress    string          `json:"payAddress"`
	PayAmount     decimal.Decimal `json:"payAmount"`
	ActuallyPaid  decimal.Decimal `json:"actuallyPaid"`
	PayCurrency   string          `json:"payCurrency"`
	OrderID       string          `json:"orderId"`
}

// FlexID decodes ids that the provider sends either as JSON numbers or strings.
type FlexID string

func (id *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*id = FlexID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("payment id: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// CryptoNotification is the IPN body posted to the callback URL.
type CryptoNotification struct {
	PaymentID        FlexID              `json:"payment_id" validate:"required"`
	PaymentStatus    string              `json:"payment_status" validate:"required"`
	PayAddress       string              `json:"pay_address"`
	PriceAmount      decimal.Decimal     `json:"price_amount"`
	PriceCurrency    string              `json:"price_currency"`
	PayAmount        decimal.Decimal     `json:"pay_amount"`
	ActuallyPaid     decimal.NullDecimal `json:"actually_paid"`
	PayCurrency      string              `json:"pay_currency"`
	OrderID          string              `json:"order_id" validate:"required"`
	OrderDescription string              `json:"order_description"`
	OutcomeAmount    decimal.NullDecimal `json:"outcome_amount"`
	OutcomeCurrency  string              `json:"outcome_currency"`
}

// Event normalizes the provider status vocabulary.
func (n CryptoNotification) Event() orders.Event {
	status := strings.ToLower(n.PaymentStatus)
	switch status {
	case "finished", "confirmed":
		amount := n.PayAmount
		if n.ActuallyPaid.Valid && n.ActuallyPaid.Decimal.IsPositive() {
			amount = n.ActuallyPaid.Decimal
		}
		currency := strings.ToLower(n.PayCurrency)
		return orders.PaymentConfirmed(amount.String(), currency,
			fmt.Sprintf("Crypto payment %s (%s %s)", status, amount.String(), currency))
	case "failed", "expired":
		return orders.PaymentFailedEvent("Crypto payment " + status)
	default:
		return orders.StatusNote("Crypto payment status: " + status)
	}
}

// VerifyIPNSignature checks the x-nowpayments-sig header: an HMAC-SHA512 over the body
// re-serialized with keys sorted, keyed by the IPN secret.
func VerifyIPNSignature(body []byte, signature, secret string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// map keys are emitted in sorted order at every level
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	sorted := bytes.TrimRight(buf.Bytes(), "\n")

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(sorted)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// NowPayments is a minimal REST client for the NOWPayments API.
type NowPayments struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewNowPayments returns a client whose calls are bounded by timeout.
func NewNowPayments(baseURL, apiKey string, timeout time.Duration) *NowPayments {
	return &NowPayments{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type createPaymentBody struct {
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayCurrency      string      `json:"pay_currency,omitempty"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description"`
	IPNCallbackURL   string      `json:"ipn_callback_url"`
}

type paymentBody struct {
	PaymentID     FlexID          `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	PayAddress    string          `json:"pay_address"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	ActuallyPaid  decimal.Decimal `json:"actually_paid"`
	PayCurrency   string          `json:"pay_currency"`
	OrderID       string          `json:"order_id"`
	PaymentURL    string          `json:"payment_url"`
	InvoiceURL    string          `json:"invoice_url"`
}

func (c *NowPayments) CreatePayment(ctx context.Context, req CryptoPaymentRequest) (CryptoPaymentHandle, error) {
	body := createPaymentBody{
		PriceAmount:      json.Number(req.PriceAmount.String()),
		PriceCurrency:    strings.ToLower(req.PriceCurrency),
		PayCurrency:      strings.ToLower(req.PayCurrency),
		OrderID:          req.OrderID,
		OrderDescription: req.OrderDescription,
		IPNCallbackURL:   req.CallbackURL,
	}
	var out paymentBody
	if err := c.do(ctx, http.MethodPost, "/payment", body, &out); err != nil {
		return CryptoPaymentHandle{}, err
	}
	paymentURL := out.PaymentURL
	if paymentURL == "" {
		paymentURL = out.InvoiceURL
	}
	return CryptoPaymentHandle{
		PaymentID:   string(out.PaymentID),
		PayAddress:  out.PayAddress,
		PayAmount:   out.PayAmount,
		PayCurrency: out.PayCurrency,
		PaymentURL:  paymentURL,
	}, nil
}

func (c *NowPayments) GetPayment(ctx context.Context, paymentID string) (CryptoPaymentStatus, error) {
	var out paymentBody
	if err := c.do(ctx, http.MethodGet, "/payment/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return CryptoPaymentStatus{}, err
	}
	return CryptoPaymentStatus{
		PaymentID:     string(out.PaymentID),
		PaymentStatus: out.PaymentStatus,
		PayAddress:    out.PayAddress,
		PayAmount:     out.PayAmount,
		ActuallyPaid:  out.ActuallyPaid,
		PayCurrency:   out.PayCurrency,
		OrderID:       out.OrderID,
	}, nil
}

func (c *NowPayments) Currencies(ctx context.Context) ([]string, error) {
	var out struct {
		Currencies []string `json:"currencies"`
	}
	if err := c.do(ctx, http.MethodGet, "/currencies", nil, &out); err != nil {
		return nil, err
	}
	return out.Currencies, nil
}

func (c *NowPayments) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nowpayments %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("nowpayments %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
