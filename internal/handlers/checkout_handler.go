package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/payments"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/validation"
)

// RegisterCheckoutRoutes registers payment creation and payment status routes.
func RegisterCheckoutRoutes(r gin.IRouter, cfg HandlerConfig) {
	g := r.Group("/api/checkout")

	g.POST("/card", func(c *gin.Context) {
		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		session, err := cfg.Checkout.CreateCardSession(c.Request.Context(), checkoutInput(req))
		if err != nil {
			writeError(c, requestLog(c, cfg.Log), err)
			return
		}
		c.Header("Location", fmt.Sprintf("/api/orders/%s", session.OrderNumber))
		c.JSON(http.StatusCreated, session)
	})

	g.POST("/crypto", func(c *gin.Context) {
		var req validation.CryptoCheckoutRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}

		payment, err := cfg.Checkout.CreateCryptoPayment(c.Request.Context(), checkoutInput(req.CheckoutRequest), req.PayCurrency)
		if err != nil {
			writeError(c, requestLog(c, cfg.Log), err)
			return
		}
		c.Header("Location", fmt.Sprintf("/api/orders/%s", payment.OrderNumber))
		c.JSON(http.StatusCreated, payment)
	})

	// The browser lands here after the card redirect. A paid or expired session is reconciled
	// so the order converges even when the webhook is late or lost.
	g.GET("/card/sessions/:sessionId", func(c *gin.Context) {
		ctx := c.Request.Context()
		log := requestLog(c, cfg.Log)

		st, err := cfg.Checkout.CardSessionStatus(ctx, c.Param("sessionId"))
		if err != nil {
			writeError(c, log, err)
			return
		}

		resp := gin.H{
			"sessionId":     st.SessionID,
			"status":        st.Status,
			"paymentStatus": st.PaymentStatus,
			"customerEmail": st.CustomerEmail,
			"metadata":      st.Metadata,
		}

		ev := st.Event()
		if number := st.OrderNumber(); number != "" && ev.Kind != orders.EventStatusNote {
			key := idempotency.DeliveryKey("stripe", "session", st.SessionID, st.PaymentStatus)
			res, err := cfg.Reconciler.ApplyDelivery(ctx, key, number, ev)
			switch {
			case errors.Is(err, reconcile.ErrOrderNotFound):
				log.Warn("card session references unknown order", "session_id", st.SessionID, "order_number", number)
			case err != nil:
				writeError(c, log, err)
				return
			}
			if res.Order != nil {
				resp["orderNumber"] = res.Order.OrderNumber
				resp["orderStatus"] = res.Order.Status
				resp["orderPaymentStatus"] = res.Order.PaymentStatus
			}
		}
		c.JSON(http.StatusOK, resp)
	})

	g.GET("/crypto/payments/:paymentId", func(c *gin.Context) {
		st, err := cfg.Checkout.CryptoPaymentStatus(c.Request.Context(), c.Param("paymentId"))
		if err != nil {
			writeError(c, requestLog(c, cfg.Log), err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	g.GET("/crypto/currencies", func(c *gin.Context) {
		list, err := cfg.Checkout.CryptoCurrencies(c.Request.Context())
		if err != nil {
			writeError(c, requestLog(c, cfg.Log), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"currencies": list})
	})
}

func checkoutInput(req validation.CheckoutRequest) payments.CheckoutInput {
	items := make([]orders.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.LineItem{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   orders.Money(it.UnitPrice),
		})
	}
	return payments.CheckoutInput{
		OrderNumber: req.OrderNumber,
		Customer: orders.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Items: items,
		ShippingAddress: orders.Address{
			Line1:      req.ShippingAddress.Line1,
			Line2:      req.ShippingAddress.Line2,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		Amounts: orders.Amounts{
			Subtotal: orders.Money(req.Amounts.Subtotal),
			Shipping: orders.Money(req.Amounts.Shipping),
			Tax:      orders.Money(req.Amounts.Tax),
			Total:    orders.Money(req.Amounts.Total),
		},
	}
}
