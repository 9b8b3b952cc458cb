package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/payments"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/reconcile"
)

// writeError maps domain errors onto HTTP responses.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, orders.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, payments.ErrInvalidOrderAmount):
		status, code = http.StatusBadRequest, "invalid_order_amount"
	case errors.Is(err, payments.ErrInvalidSignature):
		status, code = http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, orders.ErrDuplicateOrderNumber):
		status, code = http.StatusConflict, "duplicate_order_number"
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, reconcile.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, payments.ErrProviderUnavailable):
		status, code = http.StatusServiceUnavailable, "payment_provider_unavailable"
	}

	if status >= 500 {
		log.Error("request failed", "status", status, "err", err)
	}
	c.JSON(status, gin.H{"error": code, "msg": err.Error()})
}
