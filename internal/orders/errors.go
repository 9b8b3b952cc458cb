package orders

import "errors"

var (
	// ErrValidation wraps malformed or inconsistent order input.
	ErrValidation = errors.New("invalid order")
	// ErrDuplicateOrderNumber is returned when the order number is already taken.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	// ErrNotFound is returned when no order has the requested number.
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict means another writer committed first; reload and decide again.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrPaymentAlreadyAttached means the order already carries a provider reference.
	ErrPaymentAlreadyAttached = errors.New("payment already attached")
	// ErrNotPlaceholder means the order has moved past its placeholder state and cannot be rolled back.
	ErrNotPlaceholder = errors.New("order is not a placeholder")
)
