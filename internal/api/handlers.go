package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"proxyflow/internal/models"
	"proxyflow/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler holds service dependencies
type Handler struct {
	db        *gorm.DB
	status    *services.StatusService
	alerts    *services.AlertService
	renewals  *services.RenewalService
	analytics *services.AnalyticsService
	provision *services.ProvisionService
	auth      *services.AuthService
}

// NewHandler creates a new API handler
func NewHandler(
	db *gorm.DB,
	status *services.StatusService,
	alerts *services.AlertService,
	renewals *services.RenewalService,
	analytics *services.AnalyticsService,
	provision *services.ProvisionService,
	auth *services.AuthService,
) *Handler {
	return &Handler{
		db:        db,
		status:    status,
		alerts:    alerts,
		renewals:  renewals,
		analytics: analytics,
		provision: provision,
		auth:      auth,
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handler *Handler) {
	api := r.Group("/api")
	api.Use(handler.AuthRequired)
	{
		api.GET("/proxies/expiring-soon", handler.ListExpiringSoon)
		api.GET("/proxies/expired", handler.ListExpired)
		api.GET("/proxies/:id", handler.GetProxy)
		api.GET("/proxies/user/:id/summary", handler.GetUserSummary)
		api.GET("/proxies/stats/by-type", handler.GetStatsByType)

		api.GET("/alerts", handler.ListAlerts)
		api.GET("/alerts/user/:id", handler.ListUserAlerts)
		api.POST("/alerts/create", handler.CreateAlerts)
		api.POST("/alerts/send", handler.SendAlerts)
		api.PATCH("/alerts/:id/acknowledge", handler.AcknowledgeAlert)

		api.POST("/renewals/create", handler.CreateRenewal)
		api.POST("/renewals/:id/process", handler.ProcessRenewal)
		api.POST("/renewals/:id/auto-renew", handler.EnableAutoRenewal)
		api.GET("/renewals/user/:id", handler.ListUserRenewals)

		admin := api.Group("/admin")
		admin.Use(handler.AdminRequired)
		{
			admin.POST("/update-statuses", handler.UpdateStatuses)
			admin.POST("/process-auto-renewals", handler.ProcessAutoRenewals)
			admin.GET("/analytics", handler.GetAnalytics)
			admin.POST("/proxies/provision", handler.ProvisionProxy)
		}
	}
}

// AuthRequired validates the bearer token on every API call.
func (h *Handler) AuthRequired(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.Set("userID", claims.UserID)
	c.Next()
}

// AdminRequired additionally checks the admin API key.
func (h *Handler) AdminRequired(c *gin.Context) {
	if !h.auth.CheckAdminKey(c.GetHeader("X-Admin-Key")) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin key required"})
		return
	}
	c.Next()
}

// respondError maps business errors to status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrProxyNotFound),
		errors.Is(err, services.ErrRenewalNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPriceNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPaymentFailed):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListExpiringSoon retrieves proxies expiring within N days (default 7)
func (h *Handler) ListExpiringSoon(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		days = 7
	}

	now := time.Now()
	windowEnd := now.Add(time.Duration(days) * 24 * time.Hour)

	var proxies []models.Proxy
	if err := h.db.Where("expires_at >= ? AND expires_at <= ?", now, windowEnd).
		Order("expires_at asc").
		Find(&proxies).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(proxies))
	for i := range proxies {
		p := &proxies[i]
		items = append(items, gin.H{
			"id":             p.ID,
			"type":           p.Type,
			"expires_at":     p.ExpiresAt,
			"days_remaining": p.DaysUntilExpiration(now),
			"status":         p.Status,
			"status_label":   p.StatusLabel(),
			"package_name":   p.PackageName,
			"username":       p.Username,
			"host":           p.Host,
			"port":           p.Port,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"count":         len(items),
		"days_from_now": days,
		"proxies":       items,
	})
}

// ListExpired retrieves expired proxies
func (h *Handler) ListExpired(c *gin.Context) {
	var proxies []models.Proxy
	if err := h.db.Where("status = ?", models.ProxyStatusExpired).
		Order("expires_at desc").
		Find(&proxies).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	items := make([]gin.H, 0, len(proxies))
	for i := range proxies {
		p := &proxies[i]
		expiredDays := int(math.Ceil(now.Sub(p.ExpiresAt).Hours() / 24))
		items = append(items, gin.H{
			"id":            p.ID,
			"type":          p.Type,
			"expires_at":    p.ExpiresAt,
			"expired_since": strconv.Itoa(expiredDays) + " days",
			"status":        p.Status,
			"package_name":  p.PackageName,
			"user_id":       p.UserID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(items), "proxies": items})
}

// GetProxy retrieves a single proxy with its renewal history
func (h *Handler) GetProxy(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proxy ID"})
		return
	}

	var proxy models.Proxy
	if err := h.db.First(&proxy, id).Error; err != nil {
		respondError(c, services.ErrProxyNotFound)
		return
	}

	var history []models.RenewalHistory
	if err := h.db.Where("proxy_id = ?", proxy.ID).
		Order("renewed_at asc").
		Find(&history).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"proxy": gin.H{
			"id":             proxy.ID,
			"type":           proxy.Type,
			"status":         proxy.Status,
			"status_label":   proxy.StatusLabel(),
			"purchased_at":   proxy.PurchasedAt,
			"expires_at":     proxy.ExpiresAt,
			"days_remaining": proxy.DaysUntilExpiration(now),
			"is_expiring":    proxy.IsExpiringSoon(now),
			"is_expired":     proxy.IsExpired(now),
			"package_name":   proxy.PackageName,
			"package_price":  proxy.PackagePrice,
			"credentials": gin.H{
				"username": proxy.Username,
				"host":     proxy.Host,
				"port":     proxy.Port,
				"protocol": proxy.Protocol,
			},
			"renewal_history": history,
		},
	})
}

// GetUserSummary returns the expiration summary for a user
func (h *Handler) GetUserSummary(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	summary, err := h.analytics.UserExpirationSummary(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

// GetStatsByType returns per-type proxy statistics
func (h *Handler) GetStatsByType(c *gin.Context) {
	stats, err := h.analytics.StatsByType()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// ListAlerts retrieves alerts filtered by status (default pending)
func (h *Handler) ListAlerts(c *gin.Context) {
	status := c.DefaultQuery("status", models.AlertStatusPending)

	var alerts []models.ExpirationAlert
	if err := h.db.Where("status = ?", status).
		Order("created_at desc").
		Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(alerts), "alerts": alerts})
}

// ListUserAlerts retrieves a user's alerts
func (h *Handler) ListUserAlerts(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	var alerts []models.ExpirationAlert
	if err := h.db.Where("user_id = ?", id).
		Order("created_at desc").
		Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(alerts), "alerts": alerts})
}

// CreateAlerts runs the alert creation sweep
func (h *Handler) CreateAlerts(c *gin.Context) {
	alerts, err := h.alerts.CreateExpirationAlerts()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(alerts)})
}

// SendAlerts runs the alert delivery sweep
func (h *Handler) SendAlerts(c *gin.Context) {
	count, err := h.alerts.SendPendingAlerts()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// AcknowledgeAlert marks an alert as read
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert ID"})
		return
	}

	alert, err := h.alerts.AcknowledgeAlert(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "alert": alert})
}

// CreateRenewal creates a renewal request
func (h *Handler) CreateRenewal(c *gin.Context) {
	var req struct {
		ProxyID      uint `json:"proxy_id" binding:"required"`
		DurationDays int  `json:"duration_days" binding:"required"`
		AutoRenewal  bool `json:"auto_renewal"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proxy_id and duration_days required"})
		return
	}

	var userID *uint
	if val, ok := c.Get("userID"); ok {
		id := val.(uint)
		userID = &id
	}

	renewal, err := h.renewals.CreateRenewalRequest(req.ProxyID, userID, req.DurationDays, req.AutoRenewal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"renewal": gin.H{
			"id":            renewal.ID,
			"reference":     renewal.Reference,
			"status":        renewal.Status,
			"cost":          renewal.Cost,
			"duration_days": renewal.RenewalDuration,
			"auto_renewal":  renewal.AutoRenewEnabled,
		},
	})
}

// ProcessRenewal settles a renewal after its payment outcome
func (h *Handler) ProcessRenewal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid renewal ID"})
		return
	}

	// Body is optional; payment defaults to successful, matching the
	// storefront's checkout callback.
	var req struct {
		PaymentSuccessful *bool `json:"payment_successful"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	paymentSuccessful := req.PaymentSuccessful == nil || *req.PaymentSuccessful

	renewal, err := h.renewals.ProcessRenewal(uint(id), paymentSuccessful)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "renewal completed"
	if renewal.Status == models.RenewalStatusFailed {
		message = "renewal failed"
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"renewal": gin.H{
			"id":             renewal.ID,
			"reference":      renewal.Reference,
			"status":         renewal.Status,
			"completed_at":   renewal.CompletedAt,
			"payment_status": renewal.PaymentStatus,
		},
	})
}

// EnableAutoRenewal turns on auto-renewal for a proxy
func (h *Handler) EnableAutoRenewal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proxy ID"})
		return
	}

	var req struct {
		DurationDays     int `json:"duration_days"`
		DaysBeforeExpiry int `json:"days_before_expiry"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DurationDays <= 0 {
		req.DurationDays = 7
	}
	if req.DaysBeforeExpiry <= 0 {
		req.DaysBeforeExpiry = services.DefaultDaysBeforeExpiry
	}

	renewal, err := h.renewals.EnableAutoRenewal(uint(id), req.DurationDays, req.DaysBeforeExpiry)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"renewal": gin.H{
			"id":                 renewal.ID,
			"reference":          renewal.Reference,
			"auto_renew_enabled": renewal.AutoRenewEnabled,
			"days_before_expiry": renewal.DaysBeforeExpiry,
			"renewal_duration":   renewal.RenewalDuration,
		},
	})
}

// ListUserRenewals retrieves a user's renewal records
func (h *Handler) ListUserRenewals(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	renewals, err := h.renewals.RenewalsForUser(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(renewals), "renewals": renewals})
}

// UpdateStatuses runs the status update sweep
func (h *Handler) UpdateStatuses(c *gin.Context) {
	if err := h.status.UpdateProxyStatuses(); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "proxy statuses updated"})
}

// ProcessAutoRenewals runs the auto-renewal sweep
func (h *Handler) ProcessAutoRenewals(c *gin.Context) {
	count, err := h.renewals.ProcessScheduledAutoRenewals()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// GetAnalytics generates and returns an analytics snapshot
func (h *Handler) GetAnalytics(c *gin.Context) {
	snapshot, err := h.analytics.GenerateExpirationAnalytics()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "analytics": snapshot})
}

// ProvisionProxy provisions a new lease through the upstream API and
// records it for the user
func (h *Handler) ProvisionProxy(c *gin.Context) {
	var req struct {
		UserID       uint    `json:"user_id" binding:"required"`
		Type         string  `json:"type" binding:"required"`
		DurationDays int     `json:"duration_days" binding:"required"`
		PackageName  string  `json:"package_name"`
		PackagePrice float64 `json:"package_price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.First(&user, req.UserID).Error; err != nil {
		respondError(c, services.ErrUserNotFound)
		return
	}

	creds, err := h.provision.Provision(req.Type, req.DurationDays)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	proxy := models.Proxy{
		UserID:       req.UserID,
		Type:         req.Type,
		Host:         creds.Host,
		Port:         creds.Port,
		Protocol:     creds.Protocol,
		Username:     creds.Username,
		Password:     creds.Password,
		PackageName:  req.PackageName,
		PackagePrice: req.PackagePrice,
		PurchasedAt:  now,
		ExpiresAt:    now.Add(time.Duration(req.DurationDays) * 24 * time.Hour),
		Status:       models.ProxyStatusActive,
	}
	if err := h.db.Create(&proxy).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "proxy": proxy})
}
