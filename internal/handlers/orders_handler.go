package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/validation"
)

// RegisterOrdersRoutes registers the order projection and the operator lifecycle actions.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	g := r.Group("/api/orders/:orderNumber")

	g.GET("", func(c *gin.Context) {
		o, err := cfg.Orders.Get(c.Request.Context(), c.Param("orderNumber"))
		if err != nil {
			writeError(c, requestLog(c, cfg.Log), err)
			return
		}
		c.JSON(http.StatusOK, o)
	})

	g.POST("/cancel", func(c *gin.Context) {
		var req validation.CancelRequest
		if err := bindOptional(c, &req, cfg); err != nil {
			return
		}
		applyAction(c, cfg, orders.CancellationRequested(req.Reason))
	})

	g.POST("/shipment", func(c *gin.Context) {
		var req validation.ShipmentRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		ev := orders.ShipmentRecorded(req.Carrier, req.TrackingNumber)
		ev.Note = req.Note
		applyAction(c, cfg, ev)
	})

	g.POST("/delivery", func(c *gin.Context) {
		var req validation.DeliveryRequest
		if err := bindOptional(c, &req, cfg); err != nil {
			return
		}
		applyAction(c, cfg, orders.DeliveryRecorded(req.Note))
	})
}

// applyAction runs an operator event. Unlike provider webhooks, a conflict is reported to the
// caller as 409.
func applyAction(c *gin.Context, cfg HandlerConfig, ev orders.Event) {
	log := requestLog(c, cfg.Log)
	res, err := cfg.Reconciler.Apply(c.Request.Context(), c.Param("orderNumber"), ev)
	if err != nil {
		writeError(c, log, err)
		return
	}
	if res.Outcome == orders.OutcomeConflict {
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "msg": res.Reason, "order": res.Order})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome.String(), "order": res.Order})
}

// bindOptional accepts an empty body for endpoints whose fields are all optional.
func bindOptional(c *gin.Context, out interface{}, cfg HandlerConfig) error {
	if c.Request.ContentLength == 0 {
		if err := cfg.Validator.Struct(out); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": validation.FieldErrors(err)})
			return err
		}
		return nil
	}
	return validation.BindAndValidate(c, out, cfg.Validator)
}
