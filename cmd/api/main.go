package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"memberbudget/internal/cache"
	"memberbudget/internal/config"
	"memberbudget/internal/database"
	"memberbudget/internal/handlers"
	"memberbudget/internal/logger"
	"memberbudget/internal/membership"
	"memberbudget/internal/middleware"
	"memberbudget/internal/period"
	"memberbudget/internal/scheduler"
	"memberbudget/internal/services"
	"memberbudget/internal/validator"
)

// @title           Member Budget API
// @version         1.0
// @description     Monthly discount budget ledger for membership commerce: per-member allowances, capped discounts, and exactly-once order settlement.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create database manager and run migrations
	dbManager, err := database.NewManager(appConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	// Cache backend: Redis when configured, in-process map otherwise.
	var budgetCache cache.Cache
	if appConfig.RedisAddr != "" {
		budgetCache = cache.NewRedis(appConfig.RedisAddr)
		log.Infof("Using Redis cache at %s", appConfig.RedisAddr)
	} else {
		budgetCache = cache.NewMemory()
	}

	// Membership platform client. Directory and catalog lookups degrade
	// gracefully in the services when the platform is unreachable.
	var directory membership.Directory
	var catalog membership.Catalog
	if appConfig.PlatformAPIURL != "" {
		client := membership.NewHTTPClient(appConfig.PlatformAPIURL, appConfig.PlatformAPIToken)
		directory = client
		catalog = client
	} else {
		log.Warn("PLATFORM_API_URL not set; membership lookups are disabled")
	}

	settings := func() config.BudgetSettings { return config.Get().Budget }
	rules := membership.FlatRules{Percent: func() decimal.Decimal { return settings().DiscountPercent }}

	// Initialize services
	db := dbManager.DB()
	clock := period.RealClock{}
	intents := services.NewIntentStore(appConfig.CacheTTL)
	ledgerService := services.NewLedgerService(db, budgetCache, appConfig.CacheTTL, settings, directory)
	pricingService := services.NewPricingService(ledgerService, directory, rules, catalog, intents, settings)
	settlementService := services.NewSettlementService(db, ledgerService, directory, intents, settings)
	auditService := services.NewAuditService(db)
	dispatcher := services.NewDispatcher(ledgerService, settlementService, directory, settings)

	// Initialize handlers
	budgetHandler := handlers.NewBudgetHandler(ledgerService, settings)
	adminHandler := handlers.NewAdminHandler(ledgerService, auditService, clock)
	pricingHandler := handlers.NewPricingHandler(pricingService)
	orderHandler := handlers.NewOrderHandler(settlementService)
	webhookHandler := handlers.NewWebhookHandler(dispatcher, settlementService)

	// Monthly rollover
	rollover := scheduler.New(dispatcher, clock)
	if err := rollover.Schedule(appConfig.RolloverSchedule); err != nil {
		return fmt.Errorf("failed to schedule rollover: %w", err)
	}
	defer rollover.Stop()

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// Member routes
	budget := protected.Group("/budget")
	budget.GET("", budgetHandler.GetCurrentBudget)
	budget.GET("/history", budgetHandler.GetBudgetHistory)

	pricing := protected.Group("/pricing")
	pricing.POST("/quote", pricingHandler.QuotePrice)

	orders := protected.Group("/orders")
	orders.POST("", orderHandler.CreateOrder)
	orders.GET("/:id", orderHandler.GetOrder)

	// Admin routes
	admin := protected.Group("/admin")
	admin.Use(middleware.RoleRequired(middleware.RoleAdmin))
	admin.GET("/budgets", adminHandler.ListBudgets)
	admin.PUT("/budgets/:id", adminHandler.SetBudget)
	admin.POST("/budgets/:id/reset", adminHandler.ResetBudget)
	admin.POST("/budgets/rollover", adminHandler.TriggerRollover)
	admin.GET("/budgets/statistics", adminHandler.GetStatistics)

	// Platform webhooks
	webhooks := protected.Group("/webhooks")
	webhooks.Use(middleware.RoleRequired(middleware.RolePlatform, middleware.RoleAdmin))
	webhooks.POST("/membership", webhookHandler.MembershipChanged)
	webhooks.POST("/subscription-payment", webhookHandler.SubscriptionPayment)
	webhooks.POST("/order-status", webhookHandler.OrderStatus)

	log.Infof("Starting member budget server on port %s", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
