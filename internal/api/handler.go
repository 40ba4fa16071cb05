package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/session"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	sessions  *session.Manager
	orders    *service.OrderService
	chat      *service.ChatService
	abandoned *service.AbandonedService
	analytics *service.AnalyticsService
	content   *service.ContentService
	cleanup   *service.CleanupService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	sessions *session.Manager,
	orders *service.OrderService,
	chat *service.ChatService,
	abandoned *service.AbandonedService,
	analytics *service.AnalyticsService,
	content *service.ContentService,
	cleanup *service.CleanupService,
) *Handler {
	return &Handler{
		sessions:  sessions,
		orders:    orders,
		chat:      chat,
		abandoned: abandoned,
		analytics: analytics,
		content:   content,
		cleanup:   cleanup,
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

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", h.login)
			auth.GET("/check", h.authCheck)
			auth.POST("/logout", h.logout)
		}

		api.GET("/orders", h.requireAdmin, h.listOrders)
		api.POST("/orders", h.createOrder)

		api.GET("/product", h.getProduct)
		api.POST("/product", h.requireAdmin, h.setProduct)

		api.GET("/abandoned-checkouts", h.requireAdmin, h.listAbandoned)
		api.POST("/abandoned-checkouts", h.recordAbandoned)

		api.GET("/chat", h.getChat)
		api.POST("/chat", h.postChatMessage)
		api.POST("/chat/presence", h.chatPresence)

		analytics := api.Group("/analytics")
		{
			analytics.GET("", h.requireAdmin, h.dashboard)
			analytics.POST("", h.recordVisit)
			analytics.POST("/cart", h.recordCartEvent)
			analytics.POST("/checkout", h.recordCheckoutStart)
			analytics.POST("/heartbeat", h.presenceHeartbeat)
			analytics.GET("/live", h.liveStats)
		}

		// The storefront fetches injected scripts unauthenticated at render
		// time; only writes are gated.
		api.GET("/admin/scripts", h.getScripts)

		admin := api.Group("/admin", h.requireAdmin)
		{
			admin.POST("/scripts", h.setScripts)
			admin.POST("/abandoned-checkouts/send-email", h.sendRecoveryEmail)
			admin.DELETE("/batch-delete", h.batchDelete)
			admin.DELETE("/reset", h.fullReset)
			admin.POST("/cleanup", h.selectiveCleanup)
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

// requireAdmin gates privileged endpoints on a live session cookie.
func (h *Handler) requireAdmin(c *gin.Context) {
	token, _ := c.Cookie(session.CookieName)

	ok, err := h.sessions.Check(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Session backend unavailable"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.Next()
}

// isAdmin reports whether the caller holds a live session, for endpoints
// whose behavior varies by caller without being gated.
func (h *Handler) isAdmin(c *gin.Context) bool {
	token, _ := c.Cookie(session.CookieName)
	ok, err := h.sessions.Check(c.Request.Context(), token)
	return err == nil && ok
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		return
	}

	token, err := h.sessions.Login(c.Request.Context(), req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	session.SetCookie(c.Writer, token, h.sessions.TTL())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) authCheck(c *gin.Context) {
	token, _ := c.Cookie(session.CookieName)

	ok, err := h.sessions.Check(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session backend unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

func (h *Handler) logout(c *gin.Context) {
	token, _ := c.Cookie(session.CookieName)
	if err := h.sessions.Logout(c.Request.Context(), token); err != nil {
		// The cookie is cleared regardless; a failed delete only means the
		// key lives until its TTL.
		util.GetLogger().Warn("Failed to delete session on logout")
	}
	session.ClearCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.content.GetProduct(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) setProduct(c *gin.Context) {
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.content.SetProduct(c.Request.Context(), &product); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) recordAbandoned(c *gin.Context) {
	var req struct {
		Email     string            `json:"email"`
		CartValue float64           `json:"cartValue"`
		Items     []models.CartItem `json:"items"`
		Stage     string            `json:"stage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id, err := h.abandoned.Record(c.Request.Context(), req.Email, req.CartValue, req.Items, req.Stage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handler) listAbandoned(c *gin.Context) {
	events, err := h.abandoned.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkouts": events})
}

func (h *Handler) sendRecoveryEmail(c *gin.Context) {
	var req struct {
		Email       string            `json:"email"`
		CheckoutID  string            `json:"checkoutId"`
		Items       []models.CartItem `json:"items"`
		RecoveryURL string            `json:"recoveryUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.abandoned.SendRecoveryEmail(c.Request.Context(), req.Email, req.CheckoutID, req.Items, req.RecoveryURL); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// getChat serves both the admin inbox (no sessionId, admin only) and a
// single session's messages. An admin reading a session also marks it read.
func (h *Handler) getChat(c *gin.Context) {
	sessionID := c.Query("sessionId")

	if sessionID == "" {
		if !h.isAdmin(c) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		sessions, err := h.chat.ListSessions(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
		return
	}

	chatSession, err := h.chat.GetMessages(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.isAdmin(c) {
		if err := h.chat.MarkRead(c.Request.Context(), sessionID); err != nil {
			util.GetLogger().Warn("Failed to mark chat session read")
		}
	}
	c.JSON(http.StatusOK, chatSession)
}

func (h *Handler) postChatMessage(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
		Sender    string `json:"sender"`
		Text      string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	chatSession, err := h.chat.PostMessage(c.Request.Context(), req.SessionID, req.Sender, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatSession)
}

func (h *Handler) chatPresence(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.chat.Heartbeat(c.Request.Context(), req.SessionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) dashboard(c *gin.Context) {
	stats, err := h.analytics.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) recordVisit(c *gin.Context) {
	if err := h.analytics.RecordVisit(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) recordCartEvent(c *gin.Context) {
	if err := h.analytics.RecordCartEvent(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) recordCheckoutStart(c *gin.Context) {
	if err := h.analytics.RecordCheckoutStart(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) presenceHeartbeat(c *gin.Context) {
	var req struct {
		Country string `json:"country"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.analytics.HeartbeatPresence(c.Request.Context(), c.ClientIP(), req.Country); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) liveStats(c *gin.Context) {
	live, err := h.analytics.Live(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, live)
}

func (h *Handler) getScripts(c *gin.Context) {
	scripts, err := h.content.GetScripts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scripts": scripts})
}

func (h *Handler) setScripts(c *gin.Context) {
	var req struct {
		Scripts []models.Script `json:"scripts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.content.SetScripts(c.Request.Context(), req.Scripts); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) batchDelete(c *gin.Context) {
	result, err := h.cleanup.BatchDelete(c.Request.Context(), models.PrefixOrder)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) fullReset(c *gin.Context) {
	result, err := h.cleanup.FullReset(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) selectiveCleanup(c *gin.Context) {
	result, err := h.cleanup.SelectiveCleanup(c.Request.Context(), c.Query("keep"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondError maps service errors onto the HTTP contract.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUpstreamRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
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
