package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/auth"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the handler to its services.
type Options struct {
	Carts      *service.CartService
	Orders     *service.OrderService
	Products   *service.ProductService
	Resolver   auth.Resolver
	Readiness  map[string]Pinger
	Production bool
	Logger     *zap.Logger
}

// Handler contains HTTP handlers
type Handler struct {
	carts      *service.CartService
	orders     *service.OrderService
	products   *service.ProductService
	resolver   auth.Resolver
	readiness  map[string]Pinger
	production bool
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(opts Options) *Handler {
	return &Handler{
		carts:      opts.Carts,
		orders:     opts.Orders,
		products:   opts.Products,
		resolver:   opts.Resolver,
		readiness:  opts.Readiness,
		production: opts.Production,
		logger:     opts.Logger,
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
	v1.GET("/products/:id", h.getProduct)
	v1.GET("/images/:key", h.getImage)

	authed := v1.Group("", auth.Middleware(h.resolver, h.logger))

	cart := authed.Group("/cart")
	{
		cart.GET("", h.getCart)
		cart.GET("/summary", h.getCartSummary)
		cart.POST("/items", h.addCartItem)
		cart.PUT("/items/:productId", h.updateCartItem)
		cart.DELETE("/items/:productId", h.removeCartItem)
		cart.DELETE("", h.clearCart)
		cart.POST("/merge", h.mergeCart)
	}

	orders := authed.Group("/orders")
	{
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/myorders", h.myOrders)
		orders.GET("/stats", h.orderStats)
		orders.GET("/monthly-sales", h.monthlySales)
		orders.GET("/:id", h.getOrder)
		orders.PUT("/:id/pay", h.payOrder)
		orders.PUT("/:id/deliver", h.deliverOrder)
		orders.PUT("/:id/status", h.setOrderStatus)
	}

	products := authed.Group("/products")
	{
		products.POST("", h.createProduct)
		products.PUT("/:id", h.updateProduct)
		products.POST("/:id/restock", h.restockProduct)
		products.POST("/:id/images", h.uploadProductImage)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
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

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
