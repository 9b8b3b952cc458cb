package orders

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// OrderStatus is the fulfilment axis of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the settlement axis of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentMethod selects the payment flow.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodCrypto PaymentMethod = "crypto"
)

// Customer is a snapshot of the buyer taken at checkout.
type Customer struct {
	Name  string `dynamodbav:"name" json:"name"`
	Email string `dynamodbav:"email" json:"email"`
	Phone string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
}

// Address is a postal address snapshot.
type Address struct {
	Line1      string `dynamodbav:"line1" json:"line1"`
	Line2      string `dynamodbav:"line2,omitempty" json:"line2,omitempty"`
	City       string `dynamodbav:"city" json:"city"`
	State      string `dynamodbav:"state" json:"state"`
	PostalCode string `dynamodbav:"postal_code" json:"postalCode"`
	Country    string `dynamodbav:"country" json:"country"`
}

// StatusEntry is one element of the append-only status history.
type StatusEntry struct {
	Status    OrderStatus `dynamodbav:"status" json:"status"`
	Timestamp time.Time   `dynamodbav:"timestamp" json:"timestamp"`
	Note      string      `dynamodbav:"note,omitempty" json:"note,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderNumber     string        `dynamodbav:"order_number" json:"orderNumber"` // PK
	Customer        Customer      `dynamodbav:"customer" json:"customer"`
	Items           []LineItem    `dynamodbav:"items" json:"items"`
	ShippingAddress Address       `dynamodbav:"shipping_address" json:"shippingAddress"`
	Amounts         Amounts       `dynamodbav:"amounts" json:"amounts"`
	Currency        string        `dynamodbav:"currency" json:"currency"`
	Status          OrderStatus   `dynamodbav:"order_status" json:"status"`
	PaymentStatus   PaymentStatus `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentMethod   PaymentMethod `dynamodbav:"payment_method" json:"paymentMethod"`

	// ProviderRef is the card session id or the crypto payment id.
	ProviderRef     string `dynamodbav:"provider_ref,omitempty" json:"providerRef,omitempty"`
	PaymentURL      string `dynamodbav:"payment_url,omitempty" json:"paymentUrl,omitempty"`
	PayAddress      string `dynamodbav:"pay_address,omitempty" json:"payAddress,omitempty"`
	PayAmount       string `dynamodbav:"pay_amount,omitempty" json:"payAmount,omitempty"`
	PayCurrency     string `dynamodbav:"pay_currency,omitempty" json:"payCurrency,omitempty"`
	SettledAmount   string `dynamodbav:"settled_amount,omitempty" json:"settledAmount,omitempty"`
	SettledCurrency string `dynamodbav:"settled_currency,omitempty" json:"settledCurrency,omitempty"`

	ShippingCarrier string `dynamodbav:"shipping_carrier,omitempty" json:"shippingCarrier,omitempty"`
	TrackingNumber  string `dynamodbav:"tracking_number,omitempty" json:"trackingNumber,omitempty"`

	StatusHistory  []StatusEntry `dynamodbav:"status_history" json:"statusHistory"`
	CanBeCancelled bool          `dynamodbav:"can_be_cancelled" json:"canBeCancelled"`
	Version        int64         `dynamodbav:"version" json:"-"`
	CreatedAt      time.Time     `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `dynamodbav:"updated_at" json:"updatedAt"`
}

// State is the part of an order the state machine reads.
func (o Order) State() State {
	st := State{Order: o.Status, Payment: o.PaymentStatus}
	if n := len(o.StatusHistory); n > 0 {
		st.LastNote = o.StatusHistory[n-1].Note
	}
	return st
}

// NewOrderInput carries everything checkout knows about an order.
type NewOrderInput struct {
	OrderNumber     string
	Customer        Customer
	Items           []LineItem
	ShippingAddress Address
	Amounts         Amounts
	Currency        string
	PaymentMethod   PaymentMethod
	Note            string
}

// NewOrder validates the input and builds a pending/pending order with its first history entry.
func NewOrder(in NewOrderInput, policy CancellationPolicy, now time.Time) (Order, error) {
	if err := validateInput(in); err != nil {
		return Order{}, err
	}

	note := in.Note
	if note == "" {
		note = "Order created"
	}
	now = now.UTC()
	items := make([]LineItem, len(in.Items))
	copy(items, in.Items)

	return Order{
		OrderNumber:     in.OrderNumber,
		Customer:        in.Customer,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		Amounts:         in.Amounts,
		Currency:        strings.ToUpper(in.Currency),
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   in.PaymentMethod,
		StatusHistory:   []StatusEntry{{Status: StatusPending, Timestamp: now, Note: note}},
		CanBeCancelled:  policy.Allows(StatusPending),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func validateInput(in NewOrderInput) error {
	if strings.TrimSpace(in.OrderNumber) == "" {
		return fmt.Errorf("%w: order number is required", ErrValidation)
	}
	if strings.TrimSpace(in.Customer.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Customer.Email); err != nil {
		return fmt.Errorf("%w: customer email %q: %v", ErrValidation, in.Customer.Email, err)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}
	for i, it := range in.Items {
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrValidation, i)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d price must not be negative", ErrValidation, i)
		}
	}
	switch in.PaymentMethod {
	case MethodCard, MethodCrypto:
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	}
	if in.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrValidation)
	}
	return in.Amounts.Validate()
}
