package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks where an order sits in its lifecycle.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Order carries the budget settlement metadata alongside the order itself.
//
// DiscountUsed and RemainingBudgetAfter are display/audit values written
// exactly once when the order settles; SettledAt doubles as the idempotency
// marker that keeps a re-fired completion event from double-counting.
type Order struct {
	Base
	UserID               string           `gorm:"not null;index" json:"user_id"`
	Status               OrderStatus      `gorm:"not null;default:pending" json:"status"`
	SettledAt            *time.Time       `json:"settled_at,omitempty"`
	DiscountUsed         *decimal.Decimal `gorm:"type:decimal(10,2)" json:"discount_used,omitempty"`
	RemainingBudgetAfter *decimal.Decimal `gorm:"type:decimal(10,2)" json:"remaining_budget_after,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// Settled reports whether the order has already been committed to the ledger.
func (o *Order) Settled() bool { return o.SettledAt != nil }

// OrderItem is one line of an order. DiscountAmount is the per-unit discount
// stamped from the line's DiscountIntent when the order was created; zero
// means the line was quoted at full price.
type OrderItem struct {
	Base
	OrderID        string          `gorm:"not null;index" json:"order_id"`
	ProductID      string          `gorm:"not null" json:"product_id"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"discount_amount"`
}
