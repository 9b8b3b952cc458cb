package payments

import "errors"

var (
	// ErrProviderUnavailable means the processor is unreachable, failing, timed out or not configured.
	// The client may retry the checkout with the same order number.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrInvalidOrderAmount means the total is not positive or a line item is negative.
	ErrInvalidOrderAmount = errors.New("invalid order amount")
	// ErrInvalidSignature means a webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
