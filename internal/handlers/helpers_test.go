package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"memberbudget/internal/config"
	"memberbudget/internal/models"
	"memberbudget/internal/pagination"
	"memberbudget/internal/period"
	"memberbudget/internal/services"
	"memberbudget/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

var handlerClock = period.FixedClock{T: time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)}

func testSettings() services.SettingsProvider {
	return func() config.BudgetSettings {
		return config.BudgetSettings{
			MonthlyAmount:         decimal.NewFromInt(300),
			DiscountPercent:       decimal.NewFromInt(20),
			LowBudgetThresholdPct: 10,
		}
	}
}

// --- mock ledger service ---

type mockLedgerService struct {
	getCurrentFn     func(ctx context.Context, userID string) (*models.BudgetPeriod, error)
	initializeFn     func(ctx context.Context, userID, membershipID string) (*models.BudgetPeriod, error)
	commitUsageFn    func(ctx context.Context, periodID string, delta decimal.Decimal) (*models.BudgetPeriod, error)
	setAbsoluteFn    func(ctx context.Context, periodID string, newTotal decimal.Decimal) (*models.BudgetPeriod, error)
	resetToMonthlyFn func(ctx context.Context, periodID string) (*models.BudgetPeriod, error)
	bulkRolloverFn   func(ctx context.Context, target period.Period) (*services.RolloverResult, error)
	zeroRemainingFn  func(ctx context.Context, userID, membershipID string) error
	historyFn        func(ctx context.Context, userID string, limit int) ([]models.BudgetPeriod, error)
	listPeriodsFn    func(ctx context.Context, target period.Period, page pagination.PageRequest, userID string) (*pagination.PageResponse[models.BudgetPeriod], error)
	statisticsFn     func(ctx context.Context, target period.Period) (*services.PeriodStatistics, error)
}

func (m *mockLedgerService) GetCurrent(ctx context.Context, userID string) (*models.BudgetPeriod, error) {
	if m.getCurrentFn != nil {
		return m.getCurrentFn(ctx, userID)
	}
	return &models.BudgetPeriod{}, nil
}

func (m *mockLedgerService) Initialize(ctx context.Context, userID, membershipID string) (*models.BudgetPeriod, error) {
	if m.initializeFn != nil {
		return m.initializeFn(ctx, userID, membershipID)
	}
	return &models.BudgetPeriod{}, nil
}

func (m *mockLedgerService) CommitUsage(ctx context.Context, periodID string, delta decimal.Decimal) (*models.BudgetPeriod, error) {
	if m.commitUsageFn != nil {
		return m.commitUsageFn(ctx, periodID, delta)
	}
	return &models.BudgetPeriod{}, nil
}

func (m *mockLedgerService) SetAbsolute(ctx context.Context, periodID string, newTotal decimal.Decimal) (*models.BudgetPeriod, error) {
	if m.setAbsoluteFn != nil {
		return m.setAbsoluteFn(ctx, periodID, newTotal)
	}
	return &models.BudgetPeriod{}, nil
}

func (m *mockLedgerService) ResetToMonthly(ctx context.Context, periodID string) (*models.BudgetPeriod, error) {
	if m.resetToMonthlyFn != nil {
		return m.resetToMonthlyFn(ctx, periodID)
	}
	return &models.BudgetPeriod{}, nil
}

func (m *mockLedgerService) BulkRollover(ctx context.Context, target period.Period) (*services.RolloverResult, error) {
	if m.bulkRolloverFn != nil {
		return m.bulkRolloverFn(ctx, target)
	}
	return &services.RolloverResult{}, nil
}

func (m *mockLedgerService) ZeroRemaining(ctx context.Context, userID, membershipID string) error {
	if m.zeroRemainingFn != nil {
		return m.zeroRemainingFn(ctx, userID, membershipID)
	}
	return nil
}

func (m *mockLedgerService) History(ctx context.Context, userID string, limit int) ([]models.BudgetPeriod, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, limit)
	}
	return []models.BudgetPeriod{}, nil
}

func (m *mockLedgerService) ListPeriods(ctx context.Context, target period.Period, page pagination.PageRequest, userID string) (*pagination.PageResponse[models.BudgetPeriod], error) {
	if m.listPeriodsFn != nil {
		return m.listPeriodsFn(ctx, target, page, userID)
	}
	resp := pagination.NewPageResponse([]models.BudgetPeriod{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockLedgerService) Statistics(ctx context.Context, target period.Period) (*services.PeriodStatistics, error) {
	if m.statisticsFn != nil {
		return m.statisticsFn(ctx, target)
	}
	return &services.PeriodStatistics{}, nil
}

var _ services.LedgerServicer = (*mockLedgerService)(nil)

// --- mock settlement service ---

type mockSettlementService struct {
	createOrderFn  func(ctx context.Context, userID string, lines []services.OrderLineInput) (*models.Order, error)
	updateStatusFn func(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
	settleFn       func(ctx context.Context, orderID string) (*models.Order, error)
	getOrderFn     func(ctx context.Context, userID, orderID string) (*models.Order, error)
}

func (m *mockSettlementService) CreateOrder(ctx context.Context, userID string, lines []services.OrderLineInput) (*models.Order, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, userID, lines)
	}
	return &models.Order{}, nil
}

func (m *mockSettlementService) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, orderID, status)
	}
	return &models.Order{}, nil
}

func (m *mockSettlementService) Settle(ctx context.Context, orderID string) (*models.Order, error) {
	if m.settleFn != nil {
		return m.settleFn(ctx, orderID)
	}
	return &models.Order{}, nil
}

func (m *mockSettlementService) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, userID, orderID)
	}
	return &models.Order{}, nil
}

var _ services.SettlementServicer = (*mockSettlementService)(nil)

// --- mock pricing service ---

type mockPricingService struct {
	quotePriceFn func(ctx context.Context, userID, productID string, price decimal.Decimal) (*services.Quote, error)
}

func (m *mockPricingService) QuotePrice(ctx context.Context, userID, productID string, price decimal.Decimal) (*services.Quote, error) {
	if m.quotePriceFn != nil {
		return m.quotePriceFn(ctx, userID, productID, price)
	}
	return &services.Quote{}, nil
}

var _ services.PricingServicer = (*mockPricingService)(nil)

type mockAuditService struct{}

func (m *mockAuditService) Log(_, _, _, _, _ string, _ map[string]interface{}) {}

var _ services.AuditServicer = (*mockAuditService)(nil)

// --- test helpers ---

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}
