package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout     *service.CheckoutService
	carts        *service.CartService
	discounts    *service.DiscountService
	inventory    *service.InventoryService
	orchestrator *service.WebhookOrchestrator
	webhooks     *WebhookHandler
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	carts *service.CartService,
	discounts *service.DiscountService,
	inventory *service.InventoryService,
	orchestrator *service.WebhookOrchestrator,
	webhooks *WebhookHandler,
) *Handler {
	return &Handler{
		checkout:     checkout,
		carts:        carts,
		discounts:    discounts,
		inventory:    inventory,
		orchestrator: orchestrator,
		webhooks:     webhooks,
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

	router.POST("/webhook", h.webhooks.Receive)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/discounts/validate", h.validateDiscount)
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/products/:id/availability", h.getAvailability)

		carts := v1.Group("/carts")
		{
			carts.GET("/:token", h.getCart)
			carts.POST("/:token/items", h.addCartItem)
			carts.PATCH("/:token/items/:itemId", h.updateCartItem)
			carts.DELETE("/:token/items/:itemId", h.removeCartItem)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/discounts", h.listDiscounts)
			admin.POST("/discounts", h.createDiscount)
			admin.PUT("/discounts/:id", h.updateDiscount)
			admin.DELETE("/discounts/:id", h.deleteDiscount)
			admin.POST("/discounts/validate", h.validateDiscount)
			admin.POST("/orders/:id/refund", h.refundOrder)
		}
	}
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

type validateDiscountRequest struct {
	Code     string             `json:"code" binding:"required"`
	Subtotal decimal.Decimal    `json:"subtotal"`
	Items    []service.LineItem `json:"items,omitempty"`
	UserID   *string            `json:"user_id,omitempty"`
}

// validateDiscount evaluates a code against a cart subtotal. Rejections
// are 200s with valid=false; the checkout UI renders the reason inline.
func (h *Handler) validateDiscount(c *gin.Context) {
	var req validateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	verdict, err := h.discounts.Evaluate(c.Request.Context(), req.Code, req.Subtotal, req.Items, req.UserID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate discount"})
		return
	}

	if !verdict.Valid {
		c.JSON(http.StatusOK, gin.H{
			"valid":   false,
			"error":   verdict.Reason,
			"message": verdict.Reason.Message(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"code":     verdict.Code.Code,
		"discount": verdict.Effect,
	})
}

// createOrder handles checkout submission
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		var discountErr *service.InvalidDiscountError
		switch {
		case errors.As(err, &discountErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   discountErr.Reason,
				"message": discountErr.Reason.Message(),
			})
		case errors.Is(err, service.ErrEmptyOrder),
			errors.Is(err, service.ErrProductNotFound),
			errors.Is(err, service.ErrCartNotFound),
			errors.Is(err, service.ErrCartConverted):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, items, err := h.checkout.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// getAvailability reports cached stock and pre-order counters
func (h *Handler) getAvailability(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	stock, preorderRemaining, err := h.inventory.Availability(c.Request.Context(), productID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":         productID,
		"stock":              stock,
		"preorder_remaining": preorderRemaining,
	})
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.GetOrCreate(c.Request.Context(), c.Param("token"), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}
	c.JSON(http.StatusOK, cart)
}

type addCartItemRequest struct {
	ProductID int64   `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,min=1"`
	UserID    *string `json:"user_id,omitempty"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.carts.AddItem(c.Request.Context(), c.Param("token"), req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		h.respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return
	}
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cart, err := h.carts.UpdateItem(c.Request.Context(), c.Param("token"), itemID, req.Quantity)
	if err != nil {
		h.respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return
	}

	cart, err := h.carts.RemoveItem(c.Request.Context(), c.Param("token"), itemID)
	if err != nil {
		h.respondCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) respondCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCartNotFound), errors.Is(err, service.ErrCartItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCartConverted), errors.Is(err, service.ErrProductNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cart operation failed"})
	}
}

func (h *Handler) listDiscounts(c *gin.Context) {
	codes, err := h.discounts.ListCodes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list discount codes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"discounts": codes})
}

func (h *Handler) createDiscount(c *gin.Context) {
	var dc models.DiscountCode
	if err := c.ShouldBindJSON(&dc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.discounts.CreateCode(c.Request.Context(), &dc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create discount code"})
		return
	}
	c.JSON(http.StatusCreated, dc)
}

func (h *Handler) updateDiscount(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid discount ID"})
		return
	}
	var dc models.DiscountCode
	if err := c.ShouldBindJSON(&dc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	dc.ID = id

	if err := h.discounts.UpdateCode(c.Request.Context(), &dc); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Discount code not found"})
		return
	}
	c.JSON(http.StatusOK, dc)
}

func (h *Handler) deleteDiscount(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid discount ID"})
		return
	}

	if err := h.discounts.DeleteCode(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete discount code"})
		return
	}
	c.Status(http.StatusNoContent)
}

type refundRequest struct {
	Partial bool `json:"partial"`
}

// refundOrder is the admin refund action. Repeat refunds answer 409.
func (h *Handler) refundOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}
	var req refundRequest
	_ = c.ShouldBindJSON(&req)

	refundStatus := models.RefundStatusFull
	if req.Partial {
		refundStatus = models.RefundStatusPartial
	}

	if err := h.orchestrator.Refund(c.Request.Context(), orderID, refundStatus); err != nil {
		if errors.Is(err, service.ErrAlreadyRefunded) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   models.ReasonAlreadyRefunded,
				"message": models.ReasonAlreadyRefunded.Message(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refund order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "refund_status": refundStatus})
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
