package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (pence, cents).
// Every supported base currency has two decimal places.
type Money int64

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// Format renders the amount for humans, e.g. "£50.00".
func (m Money) Format(currency string) string {
	return currencySymbol(currency) + m.Decimal().StringFixed(2)
}

// MoneyFromDecimal converts a major-unit amount to minor units, rounding half away from zero.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(2).Round(0).IntPart())
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(currency) {
	case "GBP":
		return "£"
	case "EUR":
		return "€"
	case "USD":
		return "$"
	default:
		return strings.ToUpper(currency) + " "
	}
}

// LineItem is a priced line captured at order creation.
type LineItem struct {
	ProductName string `dynamodbav:"product_name" json:"productName"`
	Quantity    int64  `dynamodbav:"quantity" json:"quantity"`
	UnitPrice   Money  `dynamodbav:"unit_price" json:"unitPrice"`
}

// Total is quantity * unit price.
func (li LineItem) Total() Money {
	return Money(li.Quantity) * li.UnitPrice
}

// Amounts are the already-computed order totals.
type Amounts struct {
	Subtotal Money `dynamodbav:"subtotal" json:"subtotal"`
	Shipping Money `dynamodbav:"shipping" json:"shipping"`
	Tax      Money `dynamodbav:"tax" json:"tax"`
	Total    Money `dynamodbav:"total" json:"total"`
}

// Validate checks that no component is negative and subtotal + shipping + tax == total.
func (a Amounts) Validate() error {
	if a.Subtotal < 0 || a.Shipping < 0 || a.Tax < 0 || a.Total < 0 {
		return fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}
	if a.Subtotal+a.Shipping+a.Tax != a.Total {
		return fmt.Errorf("%w: subtotal %d + shipping %d + tax %d != total %d",
			ErrValidation, a.Subtotal, a.Shipping, a.Tax, a.Total)
	}
	return nil
}
