package main

import (
	"log"
	"time"

	"proxyflow/internal/api"
	"proxyflow/internal/config"
	"proxyflow/internal/database"
	"proxyflow/internal/scheduler"
	"proxyflow/internal/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Database initialized successfully")

	// Parse upstream API timeout
	timeout, err := time.ParseDuration(cfg.Upstream.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	// Initialize services
	pricingService := services.NewPricingService(cfg.Pricing)
	notifyService := services.NewNotifyService(db, &cfg.Notifications)
	statusService := services.NewStatusService(db)
	alertService := services.NewAlertService(db, notifyService)
	renewalService := services.NewRenewalService(db, pricingService)
	analyticsService := services.NewAnalyticsService(db)
	provisionService := services.NewProvisionService(cfg.Upstream.APIURL, cfg.Upstream.APIKey, timeout)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AdminKeyHash)

	// Initialize scheduler
	sched := scheduler.NewScheduler(statusService, alertService, renewalService, analyticsService)
	if err := sched.Start(&cfg.Sweeps); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Setup Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Setup API routes
	handler := api.NewHandler(db, statusService, alertService, renewalService,
		analyticsService, provisionService, authService)
	api.SetupRoutes(r, handler)

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
