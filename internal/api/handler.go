package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-api/internal/models"
	"storefront-api/internal/service"
	"storefront-api/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Settler settles a basket. Implemented by service.SettlementService.
type Settler interface {
	Settle(ctx context.Context, basket []models.BasketLine, paymentToken string) (*models.Settlement, error)
}

// Handler contains HTTP handlers
type Handler struct {
	settlement Settler
	catalog    *service.CatalogService
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(settlement Settler, catalog *service.CatalogService) *Handler {
	return &Handler{
		settlement: settlement,
		catalog:    catalog,
		logger:     util.GetLogger(),
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

	router.GET("/products", h.listProducts)
	router.POST("/checkout", h.checkout)
	router.GET("/orders/:id", h.getOrder)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts returns the catalog the client builds baskets from.
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, products)
}

// productID accepts both JSON numbers and strings, since storefront
// clients send either.
type productID int64

func (p *productID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*p = productID(id)
	return nil
}

type checkoutItem struct {
	ProductID productID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type checkoutRequest struct {
	Items        []checkoutItem `json:"items"`
	PaymentToken string         `json:"paymentToken"`
}

// checkout settles the submitted basket. All business failures map to 400
// with an error message; only unexpected store failures produce 500.
//
// Checkout is not retry-safe: resubmitting the same basket settles it
// again. Clients must not blindly retry on timeout.
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid items"})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid items"})
		return
	}

	basket := make([]models.BasketLine, len(req.Items))
	for i, item := range req.Items {
		basket[i] = models.BasketLine{
			ProductID: int64(item.ProductID),
			Quantity:  item.Quantity,
		}
	}

	result, err := h.settlement.Settle(c.Request.Context(), basket, req.PaymentToken)
	if err != nil {
		if models.IsBusinessError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Checkout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"payment":  result.Payment,
		"total":    result.Total,
		"order_id": result.OrderID,
	})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	idStr := c.Param("id")
	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.catalog.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
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
