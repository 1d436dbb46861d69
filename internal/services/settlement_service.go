package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/logger"
	"memberbudget/internal/membership"
	"memberbudget/internal/money"
	"memberbudget/internal/models"
)

// settlementService creates orders from quoted lines and charges the
// consumed discount against the ledger exactly once per order.
type settlementService struct {
	db        *gorm.DB
	ledger    LedgerServicer
	directory membership.Directory
	intents   *IntentStore
	settings  SettingsProvider
}

// NewSettlementService creates a new SettlementServicer.
func NewSettlementService(
	db *gorm.DB,
	ledger LedgerServicer,
	directory membership.Directory,
	intents *IntentStore,
	settings SettingsProvider,
) SettlementServicer {
	return &settlementService{
		db:        db,
		ledger:    ledger,
		directory: directory,
		intents:   intents,
		settings:  settings,
	}
}

// CreateOrder persists an order, consuming the discount intent for each
// line that has one. Lines without a live intent are stored at the price
// the caller sent.
func (s *settlementService) CreateOrder(ctx context.Context, userID string, lines []OrderLineInput) (*models.Order, error) {
	if userID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "user is required")
	}
	if len(lines) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "order must have at least one line")
	}

	order := &models.Order{
		UserID: userID,
		Status: models.OrderStatusPending,
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "line quantity must be at least 1")
		}
		item := models.OrderItem{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPrice:      money.Round(line.UnitPrice),
			DiscountAmount: decimal.Zero,
		}
		if intent, ok := s.intents.Take(userID, line.ProductID); ok {
			item.UnitPrice = intent.DiscountedPrice
			item.DiscountAmount = intent.DiscountAmount
		}
		order.Items = append(order.Items, item)
	}

	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return order, nil
}

// GetOrder loads an order with its items, scoped to its owner.
func (s *settlementService) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").
		First(&order, "id = ? AND user_id = ?", orderID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &order, nil
}

// loadOrder fetches an order by ID only, for internal settlement paths
// that are not user-scoped.
func (s *settlementService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &order, nil
}

// UpdateStatus moves an order to a new status and settles it when the
// status reaches the configured settlement point.
func (s *settlementService) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != status {
		res := s.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ?", orderID).
			Update("status", status)
		if res.Error != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		order.Status = status
	}

	if status == models.OrderStatusCompleted ||
		(s.settings().SettleOnProcessing && status == models.OrderStatusProcessing) {
		return s.Settle(ctx, orderID)
	}
	return order, nil
}

// Settle charges an order's total discount against the user's current
// budget period, at most once. The settled_at marker is written with a
// guard on its own emptiness, so two concurrent settles commit one charge.
func (s *settlementService) Settle(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Settled() {
		return order, nil
	}

	if s.directory != nil {
		status, dirErr := s.directory.Status(ctx, order.UserID)
		if dirErr != nil {
			logger.Get().Warnw("membership lookup failed during settlement, skipping charge",
				"order_id", orderID, "error", dirErr)
			return order, nil
		}
		if !membership.Eligible(status, s.settings().AllowedPlanIDs) {
			return order, nil
		}
	}

	total := decimal.Zero
	for _, item := range order.Items {
		if item.DiscountAmount.IsPositive() {
			total = total.Add(item.DiscountAmount.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	if !total.IsPositive() {
		return order, nil
	}
	total = money.Round(total)

	row, err := s.ledger.GetCurrent(ctx, order.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrBudgetPeriodNotFound) {
			logger.Get().Warnw("no budget period at settlement, order keeps its discount unfunded",
				"order_id", orderID, "user_id", order.UserID)
			return order, nil
		}
		return nil, err
	}

	// Claim the marker before touching the ledger. Two concurrent settles
	// race on this guarded update; the loser charges nothing.
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND settled_at IS NULL", orderID).
		Updates(map[string]interface{}{
			"settled_at":    now,
			"discount_used": total,
		})
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.loadOrder(ctx, orderID)
	}

	updated, err := s.ledger.CommitUsage(ctx, row.ID, total)
	if err != nil {
		// Release the claim so a retry can charge the ledger.
		s.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{"settled_at": nil, "discount_used": nil})
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("remaining_budget_after", updated.RemainingBudget).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.Get().Infow("order settled against budget",
		"order_id", orderID, "user_id", order.UserID,
		"discount_used", total, "remaining_budget", updated.RemainingBudget)

	order.SettledAt = &now
	order.DiscountUsed = &total
	remaining := updated.RemainingBudget
	order.RemainingBudgetAfter = &remaining
	return order, nil
}
