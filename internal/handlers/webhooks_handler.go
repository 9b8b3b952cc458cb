package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/payments"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/validation"
)

const maxWebhookBody = 1 << 20

// RegisterWebhookRoutes registers the provider notification endpoints. Both answer 2xx once
// the notification is reconciled (including conflicts), 404 for an unknown order and 5xx on
// store failure so the provider redelivers.
func RegisterWebhookRoutes(r gin.IRouter, cfg HandlerConfig) {
	g := r.Group("/api/webhooks")

	g.POST("/nowpayments", func(c *gin.Context) {
		ctx := c.Request.Context()
		log := requestLog(c, cfg.Log)

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}

		if cfg.CryptoIPNSecret != "" {
			if err := payments.VerifyIPNSignature(body, c.GetHeader("x-nowpayments-sig"), cfg.CryptoIPNSecret); err != nil {
				log.Warn("crypto webhook rejected", "err", err)
				writeError(c, log, err)
				return
			}
		}

		var n payments.CryptoNotification
		if err := json.Unmarshal(body, &n); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}
		if err := cfg.Validator.Struct(n); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": validation.FieldErrors(err)})
			return
		}

		log.Info("crypto webhook received", "payment_id", string(n.PaymentID), "payment_status", n.PaymentStatus, "order_number", n.OrderID)
		key := idempotency.DeliveryKey("nowpayments", string(n.PaymentID), n.PaymentStatus)
		res, err := cfg.Reconciler.ApplyDelivery(ctx, key, n.OrderID, n.Event())
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome.String()})
	})

	g.POST("/stripe", func(c *gin.Context) {
		ctx := c.Request.Context()
		log := requestLog(c, cfg.Log)

		if cfg.CardWebhookSecret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "card_webhooks_disabled"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}

		wh, err := payments.ParseStripeWebhook(body, c.GetHeader("Stripe-Signature"), cfg.CardWebhookSecret)
		if err != nil {
			if errors.Is(err, payments.ErrInvalidSignature) {
				log.Warn("card webhook rejected", "err", err)
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}
		if !wh.Relevant {
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": wh.Type})
			return
		}
		if wh.OrderNumber == "" {
			log.Warn("card webhook without order reference", "event_id", wh.EventID, "type", wh.Type)
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": wh.Type})
			return
		}

		log.Info("card webhook received", "event_id", wh.EventID, "type", wh.Type, "order_number", wh.OrderNumber)
		res, err := cfg.Reconciler.ApplyDelivery(ctx, idempotency.DeliveryKey("stripe", wh.EventID), wh.OrderNumber, wh.Event)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome.String()})
	})
}
