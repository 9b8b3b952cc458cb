package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the engine with every route registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(cfg.Log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterCheckoutRoutes(r, cfg)
	RegisterWebhookRoutes(r, cfg)
	RegisterOrdersRoutes(r, cfg)

	return r
}
