package services

import (
	"context"

	"github.com/shopspring/decimal"

	"memberbudget/internal/config"
	"memberbudget/internal/models"
	"memberbudget/internal/pagination"
	"memberbudget/internal/period"
)

// SettingsProvider returns the current budget settings. It is a function so
// that a settings change between two calls is observed by the next call,
// the way ResetToMonthly is required to re-read the monthly amount.
type SettingsProvider func() config.BudgetSettings

// MonthlyAmountFunc resolves the base monthly allowance for one member.
// It is the extension point for per-user or per-plan overrides; the default
// implementation returns the configured monthly amount unconditionally.
type MonthlyAmountFunc func(ctx context.Context, userID, membershipID string) decimal.Decimal

// RolloverResult reports what a bulk rollover did.
type RolloverResult struct {
	ResetCount   int `json:"reset_count"`
	CreatedCount int `json:"created_count"`
}

// PeriodStatistics aggregates one period's ledger rows for reporting.
type PeriodStatistics struct {
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	MemberCount      int             `json:"member_count"`
	TotalBudget      decimal.Decimal `json:"total_budget"`
	TotalUsed        decimal.Decimal `json:"total_used"`
	TotalRemaining   decimal.Decimal `json:"total_remaining"`
	AvgUsedPerMember decimal.Decimal `json:"avg_used_per_member"`
	MembersOverHalf  int             `json:"members_over_half_usage"`
	MembersNoUsage   int             `json:"members_no_usage"`
}

// LedgerServicer is the single authority for reading and mutating
// BudgetPeriod rows. Every other component goes through it.
type LedgerServicer interface {
	// GetCurrent returns the user's row for the current period, through the
	// read cache. ErrBudgetPeriodNotFound when none exists.
	GetCurrent(ctx context.Context, userID string) (*models.BudgetPeriod, error)
	// Initialize creates the current period's row if missing and returns it.
	// An existing row is returned untouched.
	Initialize(ctx context.Context, userID, membershipID string) (*models.BudgetPeriod, error)
	// CommitUsage adds delta to the period's used amount, clamped so usage
	// never exceeds the total. The only mutation path driven by orders.
	CommitUsage(ctx context.Context, periodID string, delta decimal.Decimal) (*models.BudgetPeriod, error)
	// SetAbsolute overwrites the period's total budget, leaving usage as is.
	SetAbsolute(ctx context.Context, periodID string, newTotal decimal.Decimal) (*models.BudgetPeriod, error)
	// ResetToMonthly restores the period to the currently configured monthly
	// amount with zero usage.
	ResetToMonthly(ctx context.Context, periodID string) (*models.BudgetPeriod, error)
	// BulkRollover creates or resets the target period for every eligible
	// active member inside one transaction; all-or-nothing.
	BulkRollover(ctx context.Context, target period.Period) (*RolloverResult, error)
	// ZeroRemaining exhausts the current period attached to the given
	// membership, used when that membership is deactivated.
	ZeroRemaining(ctx context.Context, userID, membershipID string) error
	// History lists the user's past periods, newest first.
	History(ctx context.Context, userID string, limit int) ([]models.BudgetPeriod, error)
	// ListPeriods pages through one period's rows, optionally for one user.
	ListPeriods(ctx context.Context, target period.Period, page pagination.PageRequest, userID string) (*pagination.PageResponse[models.BudgetPeriod], error)
	// Statistics aggregates one period for the reports surface.
	Statistics(ctx context.Context, target period.Period) (*PeriodStatistics, error)
}

// Quote is the outcome of one price computation.
type Quote struct {
	ProductID       string          `json:"product_id"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	DiscountApplied bool            `json:"discount_applied"`
}

// PricingServicer computes customer-facing prices against the ledger.
// Quoting never mutates budget state.
type PricingServicer interface {
	QuotePrice(ctx context.Context, userID, productID string, price decimal.Decimal) (*Quote, error)
}

// OrderLineInput is one requested order line at checkout.
type OrderLineInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// SettlementServicer converts quoted discounts into committed budget usage,
// exactly once per order.
type SettlementServicer interface {
	// CreateOrder persists an order, consuming each line's DiscountIntent.
	CreateOrder(ctx context.Context, userID string, lines []OrderLineInput) (*models.Order, error)
	// UpdateStatus records an order status transition.
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
	// Settle commits the order's recorded discounts against the ledger.
	// Safe to call repeatedly; only the first call mutates anything.
	Settle(ctx context.Context, orderID string) (*models.Order, error)
	// GetOrder returns an order with its lines if it belongs to the user.
	GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(actorID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
