package orders

import "fmt"

// CancellationPolicy decides up to which fulfilment stage a customer may cancel.
type CancellationPolicy string

const (
	// CancelPendingOnly allows cancellation only before payment is confirmed.
	CancelPendingOnly CancellationPolicy = "pending_only"
	// CancelUntilShipped also allows cancelling a paid order that has not shipped.
	CancelUntilShipped CancellationPolicy = "until_shipped"
)

// ParseCancellationPolicy maps a config value to a policy; empty means CancelPendingOnly.
func ParseCancellationPolicy(s string) (CancellationPolicy, error) {
	switch CancellationPolicy(s) {
	case "", CancelPendingOnly:
		return CancelPendingOnly, nil
	case CancelUntilShipped:
		return CancelUntilShipped, nil
	}
	return "", fmt.Errorf("unknown cancellation policy %q", s)
}

// Allows reports whether an order in status may be cancelled.
func (p CancellationPolicy) Allows(status OrderStatus) bool {
	switch status {
	case StatusPending:
		return true
	case StatusProcessing:
		return p == CancelUntilShipped
	default:
		return false
	}
}
