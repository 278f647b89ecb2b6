package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-orders/internal/auth"
	"storefront-orders/internal/models"
	"storefront-orders/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderAPI is the order service surface exposed over HTTP
type OrderAPI interface {
	PlaceOrder(ctx context.Context, customerID int64, req *service.PlaceOrderRequest) (*models.Order, bool, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, customerID int64) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus) (*models.Order, error)
	TrackOrder(ctx context.Context, orderNumber string) (*service.TrackingView, error)
	CreateReturnRequest(ctx context.Context, customerID, orderID int64, in *service.ReturnRequestInput) (*models.ReturnRequest, error)
	UpdateReturnStatus(ctx context.Context, returnID int64, status models.ReturnStatus) (*models.ReturnRequest, error)
	ListStockMovements(ctx context.Context, productID int64) ([]models.StockMovement, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck names a dependency checked by /ready
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	orders     OrderAPI
	verifier   *auth.Verifier
	authorizer *auth.Authorizer
	checks     []ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderAPI, verifier *auth.Verifier, authorizer *auth.Authorizer, checks ...ReadinessCheck) *Handler {
	useJSONFieldNames()
	return &Handler{
		orders:     orders,
		verifier:   verifier,
		authorizer: authorizer,
		checks:     checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(recovery())
	router.Use(prometheusMiddleware())
	router.Use(tracingMiddleware())
	router.Use(accessLog())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := router.Group("/api")
	{
		public.GET("/orders/track/:orderNumber", h.trackOrder)
	}

	authed := router.Group("/api", h.requireAuth())
	{
		authed.POST("/orders", h.requirePermission(auth.ResourceOrders, auth.ActionCreate), h.placeOrder)
		authed.GET("/orders", h.requirePermission(auth.ResourceOrders, auth.ActionReadOwn), h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.PATCH("/orders/:id/status", h.requirePermission(auth.ResourceOrders, auth.ActionUpdateStatus), h.updateOrderStatus)
		authed.POST("/orders/:id/return-request", h.requirePermission(auth.ResourceReturns, auth.ActionCreate), h.createReturnRequest)
		authed.PATCH("/return-requests/:id/status", h.requirePermission(auth.ResourceReturns, auth.ActionUpdateStatus), h.updateReturnStatus)
		authed.GET("/products/:id/stock-movements", h.requirePermission(auth.ResourceInventory, auth.ActionRead), h.listStockMovements)
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

	failures := gin.H{}
	for _, check := range h.checks {
		if err := check.Pinger.Ping(ctx); err != nil {
			failures[check.Name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// placeOrder handles checkout
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, created, err := h.orders.PlaceOrder(c.Request.Context(), principal(c).UserID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	respondOK(c, status, order)
}

// listOrders returns the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), principal(c).UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	respondOK(c, http.StatusOK, orders)
}

// getOrder returns an order to its owner or to staff
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if order.CustomerID != principal(c).UserID {
		allowed, err := h.can(c, auth.ResourceOrders, auth.ActionReadAny)
		if err != nil {
			respondError(c, http.StatusInternalServerError, err.Error())
			return
		}
		if !allowed {
			respondError(c, http.StatusForbidden, "You do not have access to this order")
			return
		}
	}

	respondOK(c, http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateOrderStatus sets an order's status
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid status: must be one of "+joinStatuses())
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// trackOrder is the public lookup by order number
func (h *Handler) trackOrder(c *gin.Context) {
	orderNumber := strings.TrimSpace(c.Param("orderNumber"))
	if orderNumber == "" {
		respondError(c, http.StatusBadRequest, "Order number is required")
		return
	}

	view, err := h.orders.TrackOrder(c.Request.Context(), orderNumber)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, view)
}

// createReturnRequest opens a return or exchange on a delivered order
func (h *Handler) createReturnRequest(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.ReturnRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rr, err := h.orders.CreateReturnRequest(c.Request.Context(), principal(c).UserID, orderID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, rr)
}

// updateReturnStatus records a staff decision on a return request
func (h *Handler) updateReturnStatus(c *gin.Context) {
	returnID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	rr, err := h.orders.UpdateReturnStatus(c.Request.Context(), returnID, models.ReturnStatus(req.Status))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rr)
}

// listStockMovements returns a product's stock audit trail
func (h *Handler) listStockMovements(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}

	movements, err := h.orders.ListStockMovements(c.Request.Context(), productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if movements == nil {
		movements = []models.StockMovement{}
	}
	respondOK(c, http.StatusOK, movements)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func joinStatuses() string {
	names := make([]string, len(models.OrderStatuses))
	for i, s := range models.OrderStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
