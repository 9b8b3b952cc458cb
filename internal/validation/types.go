package validation

// Customer is the buyer snapshot submitted at checkout.
type Customer struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// Address is the shipping destination.
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// Item represents a single order line item. Prices are integer minor units.
type Item struct {
	ProductName string `json:"productName" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"required,min=1"`
	UnitPrice   int64  `json:"unitPrice" validate:"min=0"`
}

// Amounts are integer minor units computed by the client.
type Amounts struct {
	Subtotal int64 `json:"subtotal" validate:"min=0"`
	Shipping int64 `json:"shipping" validate:"min=0"`
	Tax      int64 `json:"tax" validate:"min=0"`
	Total    int64 `json:"total" validate:"required,gt=0"`
}

// CheckoutRequest is the payload for POST /api/checkout/card.
type CheckoutRequest struct {
	OrderNumber     string   `json:"orderNumber" validate:"required,max=64,excludesall=/?#"`
	Customer        Customer `json:"customer"`
	Items           []Item   `json:"items" validate:"required,min=1,dive"`
	ShippingAddress Address  `json:"shippingAddress"`
	Amounts         Amounts  `json:"amounts"`
}

// CryptoCheckoutRequest is the payload for POST /api/checkout/crypto.
type CryptoCheckoutRequest struct {
	CheckoutRequest
	// PayCurrency is the coin ticker; empty lets the payer choose on the provider page.
	PayCurrency string `json:"payCurrency,omitempty" validate:"omitempty,alphanum,max=20"`
}

// CancelRequest is the payload for POST /api/orders/:orderNumber/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// ShipmentRequest is the payload for POST /api/orders/:orderNumber/shipment.
type ShipmentRequest struct {
	Carrier        string `json:"carrier" validate:"required,max=100"`
	TrackingNumber string `json:"trackingNumber" validate:"required,max=100"`
	Note           string `json:"note,omitempty" validate:"max=500"`
}

// DeliveryRequest is the payload for POST /api/orders/:orderNumber/delivery.
type DeliveryRequest struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}
