package notify

import "errors"

var (
	// ErrDeliveryFailed wraps any failure to render or send a message.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrEmailDisabled is reported by the sender used when no email provider key is configured.
	ErrEmailDisabled = errors.New("email delivery disabled")
)
