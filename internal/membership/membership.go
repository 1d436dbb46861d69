// Package membership defines the contracts this service needs from the
// surrounding commerce platform. Membership lifecycle, discount rules and
// the product catalog are owned elsewhere; the ledger only queries them.
package membership

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is a user's membership standing as reported by the platform.
type Status struct {
	IsMember     bool
	MembershipID string
	PlanIDs      []string
}

// Member identifies one active member for bulk operations.
type Member struct {
	UserID       string
	MembershipID string
	PlanIDs      []string
}

// Directory looks up membership state. Implementations live outside this
// service (platform API client, shared database view).
type Directory interface {
	// Status returns the user's current membership standing.
	Status(ctx context.Context, userID string) (Status, error)
	// ActiveMembers lists every user with an active membership, for the
	// monthly rollover scan.
	ActiveMembers(ctx context.Context) ([]Member, error)
}

// DiscountRules resolves the discount percentage a product carries for a
// given set of membership plans. A result of zero means no rule applies.
type DiscountRules interface {
	PercentFor(ctx context.Context, productID string, planIDs []string) (decimal.Decimal, error)
}

// Catalog provides undiscounted prices.
type Catalog interface {
	RegularPrice(ctx context.Context, productID string) (decimal.Decimal, error)
}

// PlanEligible reports whether any of the user's plans participates in the
// budget scheme. An empty allow-list means every plan is eligible.
//
// This is the single eligibility predicate shared by the ledger engine,
// the price filter and order settlement; call sites must not reimplement it.
func PlanEligible(planIDs, allowedPlanIDs []string) bool {
	if len(planIDs) == 0 {
		return false
	}
	if len(allowedPlanIDs) == 0 {
		return true
	}
	allowed := make(map[string]struct{}, len(allowedPlanIDs))
	for _, id := range allowedPlanIDs {
		allowed[id] = struct{}{}
	}
	for _, id := range planIDs {
		if _, ok := allowed[id]; ok {
			return true
		}
	}
	return false
}

// Eligible reports whether the status belongs to an active member on an
// eligible plan.
func Eligible(status Status, allowedPlanIDs []string) bool {
	return status.IsMember && PlanEligible(status.PlanIDs, allowedPlanIDs)
}
