package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the collaborators the HTTP layer dispatches to. Ready is
// optional and backs /ready.
type Services struct {
	Auth       *auth.Resolver
	Carts      *service.CartService
	Checkout   *service.CheckoutService
	Orders     *service.OrderService
	Deliveries *service.DeliveryService
	Refunds    *service.RefundService
	Revenue    *service.RevenueService
	Ready      func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	now    func() time.Time
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services) *Handler {
	return &Handler{
		svc:    svc,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.authenticate())
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/add_item", h.addCartItem)
		v1.PUT("/cart/items/:item_id", h.updateCartItem)
		v1.DELETE("/cart/items/:item_id", h.removeCartItem)
		v1.POST("/cart/merge_cart", h.requireUser(), h.mergeCart)

		v1.POST("/checkout", h.requireUser(), h.checkout)
		v1.GET("/cards", h.requireUser(), h.listCards)

		v1.GET("/orders", h.requireUser(), h.listOrders)
		v1.GET("/orders/latest", h.requireUser(), h.latestOrder)
		v1.POST("/cancel-order/:order_id", h.requireUser(), h.cancelOrder)

		v1.POST("/request-refund/:order_item_id", h.requireUser(), h.requestRefund)
		v1.POST("/approve-refund/:refund_id", h.require(models.PermManageRefunds), h.approveRefund)
		v1.POST("/deny-refund/:refund_id", h.require(models.PermManageRefunds), h.denyRefund)
		v1.GET("/refunds", h.require(models.PermManageRefunds), h.listRefunds)

		v1.GET("/deliveries", h.require(models.PermManageDeliveries), h.listDeliveries)
		v1.PUT("/deliveries/:delivery_id/status", h.require(models.PermManageDeliveries), h.updateDeliveryStatus)

		v1.GET("/invoices", h.require(models.PermViewSales), h.listInvoices)
		v1.GET("/invoices/:order_id", h.require(models.PermViewSales), h.getInvoice)
		v1.GET("/revenue-profit-analysis", h.require(models.PermViewSales), h.revenueAnalysis)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether dependencies answer
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.svc.Ready != nil {
		if err := h.svc.Ready(c.Request.Context()); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
