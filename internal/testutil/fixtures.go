package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"memberbudget/internal/config"
	"memberbudget/internal/membership"
	"memberbudget/internal/models"
	"memberbudget/internal/period"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a user identifier no other fixture in this run has used.
func NewUserID() string {
	return fmt.Sprintf("user-%d", nextID())
}

// DefaultSettings returns budget settings with the stock defaults used
// across tests: 300.00 monthly, 20% discount, carryover off.
func DefaultSettings() config.BudgetSettings {
	return config.BudgetSettings{
		MonthlyAmount:         decimal.NewFromInt(300),
		DiscountPercent:       decimal.NewFromInt(20),
		CarryoverEnabled:      false,
		LowBudgetThresholdPct: 10,
	}
}

// CreateTestBudgetPeriod creates a ledger row for the given user and period.
func CreateTestBudgetPeriod(t *testing.T, db *gorm.DB, userID string, p period.Period, total, used decimal.Decimal) *models.BudgetPeriod {
	t.Helper()

	remaining := total.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	row := &models.BudgetPeriod{
		UserID:          userID,
		MembershipID:    fmt.Sprintf("mem-%d", nextID()),
		TotalBudget:     total,
		UsedAmount:      used,
		RemainingBudget: remaining,
		Month:           p.Month,
		Year:            p.Year,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed to create test budget period: %v", err)
	}
	return row
}

// CreateTestOrder creates an order with one item per (price, discount) pair.
func CreateTestOrder(t *testing.T, db *gorm.DB, userID string, lines ...[2]decimal.Decimal) *models.Order {
	t.Helper()

	order := &models.Order{
		UserID: userID,
		Status: models.OrderStatusPending,
	}
	for i, line := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      fmt.Sprintf("prod-%d-%d", nextID(), i),
			Quantity:       1,
			UnitPrice:      line[0],
			DiscountAmount: line[1],
		})
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("failed to create test order: %v", err)
	}
	return order
}

// FakeDirectory is a membership.Directory backed by in-memory maps.
type FakeDirectory struct {
	Statuses map[string]membership.Status
	Members  []membership.Member
	Err      error
}

func (f *FakeDirectory) Status(ctx context.Context, userID string) (membership.Status, error) {
	if f.Err != nil {
		return membership.Status{}, f.Err
	}
	return f.Statuses[userID], nil
}

func (f *FakeDirectory) ActiveMembers(ctx context.Context) ([]membership.Member, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Members, nil
}

// FakeDiscountRules returns a flat percentage for every product.
type FakeDiscountRules struct {
	Percent decimal.Decimal
	Err     error
}

func (f *FakeDiscountRules) PercentFor(ctx context.Context, productID string, planIDs []string) (decimal.Decimal, error) {
	if f.Err != nil {
		return decimal.Zero, f.Err
	}
	return f.Percent, nil
}

// FakeCatalog resolves regular prices from a map; unknown products error.
type FakeCatalog struct {
	Prices map[string]decimal.Decimal
}

func (f *FakeCatalog) RegularPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	price, ok := f.Prices[productID]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for product %s", productID)
	}
	return price, nil
}
