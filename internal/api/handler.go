package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	registry   *service.Registry
	inventory  *service.Inventory
	history    *service.History
	windowDays int
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(registry *service.Registry, inventory *service.Inventory, history *service.History, windowDays int) *Handler {
	return &Handler{
		registry:   registry,
		inventory:  inventory,
		history:    history,
		windowDays: windowDays,
		logger:     util.GetLogger(),
	}
}

type searchRequest struct {
	Query string `json:"query"`
}

type lineRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

type discountRequest struct {
	Percent *float64 `json:"percent" binding:"required"`
}

type stockRequest struct {
	Stock *int `json:"stock" binding:"required"`
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		terminals := v1.Group("/terminals/:terminal")
		terminals.POST("", h.openTerminal)
		terminals.GET("", h.viewSale)
		terminals.DELETE("", h.closeTerminal)
		terminals.POST("/search", h.search)
		terminals.POST("/lines", h.addLine)
		terminals.DELETE("/lines/:product", h.removeLine)
		terminals.PUT("/discount", h.setDiscount)
		terminals.POST("/clear", h.clearSale)
		terminals.POST("/refresh", h.refreshCatalog)
		terminals.POST("/commit", h.commitSale)

		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)
		v1.PUT("/products/:id/stock", h.setStock)
		v1.POST("/products/:id/stock/adjust", h.adjustStock)

		v1.GET("/inventory/stats", h.inventoryStats)
		v1.GET("/sales/summary", h.salesSummary)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the product collection can be read
func (h *Handler) readinessCheck(c *gin.Context) {
	if _, err := h.inventory.Stats(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"sessions": h.registry.Len(),
		"time":     time.Now().Unix(),
	})
}

func (h *Handler) openTerminal(c *gin.Context) {
	s, err := h.registry.Open(c.Request.Context(), c.Param("terminal"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *Handler) closeTerminal(c *gin.Context) {
	if !h.registry.Close(c.Param("terminal")) {
		h.writeError(c, service.ErrSessionNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// session resolves the terminal path parameter, writing a 404 when it is not open
func (h *Handler) session(c *gin.Context) (*service.Session, bool) {
	s, err := h.registry.Get(c.Param("terminal"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) viewSale(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *Handler) search(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.Search(c.Request.Context(), req.Query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) addLine(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req lineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := s.AddProduct(req.ProductID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeLine(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	view, err := s.RemoveLine(c.Param("product"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// setDiscount answers 200 with a warning when the percent had to be clamped
func (h *Handler) setDiscount(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, applied, err := s.SetDiscountPercent(*req.Percent)
	resp := gin.H{
		"sale":    view,
		"applied": applied,
	}

	var invalid *service.InvalidDiscountError
	if errors.As(err, &invalid) {
		resp["warning"] = invalid.Error()
	} else if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) clearSale(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Clear())
}

func (h *Handler) refreshCatalog(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	view, err := s.RefreshCatalog(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) commitSale(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	result, err := s.Commit(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.inventory.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.inventory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req models.Product
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.inventory.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req models.Product
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.inventory.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.inventory.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	change, err := h.inventory.SetStock(c.Request.Context(), c.Param("id"), *req.Stock)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

func (h *Handler) adjustStock(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	change, err := h.inventory.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

func (h *Handler) inventoryStats(c *gin.Context) {
	stats, err := h.inventory.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) salesSummary(c *gin.Context) {
	days := h.windowDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
			return
		}
		if max := h.history.MaxWindowDays(); n > max {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    "Invalid days parameter",
				"details":  "window too large",
				"max_days": max,
			})
			return
		}
		days = n
	}

	summary, err := h.history.Summary(c.Request.Context(), days)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// writeError maps service errors onto HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var stock *service.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		status = http.StatusConflict
		body["product_id"] = stock.ProductID
		body["available"] = stock.Available
		body["requested"] = stock.Requested
	case errors.Is(err, service.ErrProductVanished), errors.Is(err, service.ErrCommitInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, service.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidProduct), errors.Is(err, service.ErrEmptySale), errors.Is(err, service.ErrInvalidDiscount):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
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
