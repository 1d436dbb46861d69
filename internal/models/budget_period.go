package models

import "github.com/shopspring/decimal"

// BudgetPeriod is one member's discount allowance for one calendar month.
//
// RemainingBudget is denormalized for fast reads; every mutation updates it
// together with UsedAmount so that
// remaining_budget == max(0, total_budget - used_amount) always holds.
// At most one row exists per (user_id, month, year). Rows are never deleted;
// past periods remain for history and reporting.
type BudgetPeriod struct {
	Base
	UserID          string          `gorm:"not null;uniqueIndex:idx_user_period,priority:1" json:"user_id"`
	MembershipID    string          `gorm:"not null;index" json:"membership_id"`
	TotalBudget     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_budget"`
	UsedAmount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"used_amount"`
	RemainingBudget decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"remaining_budget"`
	Month           int             `gorm:"not null;uniqueIndex:idx_user_period,priority:2;index:idx_period,priority:1" json:"month"`
	Year            int             `gorm:"not null;uniqueIndex:idx_user_period,priority:3;index:idx_period,priority:2" json:"year"`
}

// Exhausted reports whether no discount budget remains for the period.
func (p *BudgetPeriod) Exhausted() bool {
	return !p.RemainingBudget.IsPositive()
}
