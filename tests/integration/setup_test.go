package integration

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"memberbudget/internal/cache"
	"memberbudget/internal/config"
	"memberbudget/internal/handlers"
	"memberbudget/internal/logger"
	"memberbudget/internal/membership"
	"memberbudget/internal/middleware"
	"memberbudget/internal/models"
	"memberbudget/internal/period"
	"memberbudget/internal/services"
	"memberbudget/internal/testutil"
	"memberbudget/internal/validator"
)

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB        *gorm.DB
	Router    *gin.Engine
	Ledger    services.LedgerServicer
	Directory *testutil.FakeDirectory
	Settings  *config.BudgetSettings
	Clock     period.FixedClock
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.BudgetPeriod{},
		&models.Order{},
		&models.OrderItem{},
		&models.AuditLog{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)

	clock := period.FixedClock{T: time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)}
	settings := &config.BudgetSettings{
		MonthlyAmount:         decimal.NewFromInt(300),
		DiscountPercent:       decimal.NewFromInt(20),
		LowBudgetThresholdPct: 10,
	}
	settingsFn := func() config.BudgetSettings { return *settings }
	directory := &testutil.FakeDirectory{Statuses: map[string]membership.Status{}}

	// Services
	intents := services.NewIntentStore(time.Minute)
	ledgerService := services.NewLedgerService(db, cache.NewMemory(), time.Minute,
		settingsFn, directory, services.WithClock(clock))
	rules := membership.FlatRules{Percent: func() decimal.Decimal { return settings.DiscountPercent }}
	pricingService := services.NewPricingService(ledgerService, directory, rules, nil, intents, settingsFn)
	settlementService := services.NewSettlementService(db, ledgerService, directory, intents, settingsFn)
	auditService := services.NewAuditService(db)
	dispatcher := services.NewDispatcher(ledgerService, settlementService, directory, settingsFn)

	// Handlers
	budgetHandler := handlers.NewBudgetHandler(ledgerService, settingsFn)
	adminHandler := handlers.NewAdminHandler(ledgerService, auditService, clock)
	pricingHandler := handlers.NewPricingHandler(pricingService)
	orderHandler := handlers.NewOrderHandler(settlementService)
	webhookHandler := handlers.NewWebhookHandler(dispatcher, settlementService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	budget := protected.Group("/budget")
	budget.GET("", budgetHandler.GetCurrentBudget)
	budget.GET("/history", budgetHandler.GetBudgetHistory)

	pricing := protected.Group("/pricing")
	pricing.POST("/quote", pricingHandler.QuotePrice)

	orders := protected.Group("/orders")
	orders.POST("", orderHandler.CreateOrder)
	orders.GET("/:id", orderHandler.GetOrder)

	admin := protected.Group("/admin")
	admin.Use(middleware.RoleRequired(middleware.RoleAdmin))
	admin.GET("/budgets", adminHandler.ListBudgets)
	admin.PUT("/budgets/:id", adminHandler.SetBudget)
	admin.POST("/budgets/:id/reset", adminHandler.ResetBudget)
	admin.POST("/budgets/rollover", adminHandler.TriggerRollover)
	admin.GET("/budgets/statistics", adminHandler.GetStatistics)

	webhooks := protected.Group("/webhooks")
	webhooks.Use(middleware.RoleRequired(middleware.RolePlatform, middleware.RoleAdmin))
	webhooks.POST("/membership", webhookHandler.MembershipChanged)
	webhooks.POST("/subscription-payment", webhookHandler.SubscriptionPayment)
	webhooks.POST("/order-status", webhookHandler.OrderStatus)

	return &testApp{
		DB:        db,
		Router:    router,
		Ledger:    ledgerService,
		Directory: directory,
		Settings:  settings,
		Clock:     clock,
	}
}

// addMember registers a user as an active member in the fake directory and
// returns a bearer token for them.
func (app *testApp) addMember(t *testing.T, userID string) string {
	t.Helper()
	app.Directory.Statuses[userID] = membership.Status{
		IsMember:     true,
		MembershipID: "mem-" + userID,
		PlanIDs:      []string{"gold"},
	}
	return app.token(t, userID, middleware.RoleMember)
}

// token signs a JWT for the given subject and role.
func (app *testApp) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := middleware.GenerateToken(userID, role)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}
