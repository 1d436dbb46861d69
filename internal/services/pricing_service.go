package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/logger"
	"memberbudget/internal/membership"
	"memberbudget/internal/money"
)

// quotingKey marks a context that is already inside QuotePrice. Nested
// price lookups from rule or catalog providers see the marker and pass the
// price through untouched instead of re-applying the discount.
type quotingKey struct{}

// InQuote reports whether ctx is already inside a price quote. Catalog and
// rules providers that resolve prices through this service use it to break
// the cycle.
func InQuote(ctx context.Context) bool {
	v, _ := ctx.Value(quotingKey{}).(bool)
	return v
}

// pricingService turns a displayed price into a discounted quote and
// records the intent settlement later charges against the ledger.
type pricingService struct {
	ledger    LedgerServicer
	directory membership.Directory
	rules     membership.DiscountRules
	catalog   membership.Catalog
	intents   *IntentStore
	settings  SettingsProvider
}

// NewPricingService creates a new PricingServicer. The catalog is optional;
// when nil the caller-supplied price is taken as the regular price.
func NewPricingService(
	ledger LedgerServicer,
	directory membership.Directory,
	rules membership.DiscountRules,
	catalog membership.Catalog,
	intents *IntentStore,
	settings SettingsProvider,
) PricingServicer {
	return &pricingService{
		ledger:    ledger,
		directory: directory,
		rules:     rules,
		catalog:   catalog,
		intents:   intents,
		settings:  settings,
	}
}

// QuotePrice returns the price a member should see for one unit of a
// product. Any condition that prevents a discount returns the input price
// unchanged: quoting never fails a storefront render. A discount larger
// than the remaining budget is withheld entirely, never split across the
// ledger boundary.
func (s *pricingService) QuotePrice(ctx context.Context, userID, productID string, price decimal.Decimal) (*Quote, error) {
	passthrough := &Quote{
		ProductID:      productID,
		OriginalPrice:  price,
		DiscountAmount: decimal.Zero,
		FinalPrice:     price,
	}

	if InQuote(ctx) {
		return passthrough, nil
	}
	ctx = context.WithValue(ctx, quotingKey{}, true)

	if userID == "" || productID == "" || !price.IsPositive() {
		return passthrough, nil
	}
	if s.directory == nil {
		return passthrough, nil
	}

	status, err := s.directory.Status(ctx, userID)
	if err != nil {
		logger.Get().Warnw("membership lookup failed, selling at regular price",
			"user_id", userID, "error", err)
		return passthrough, nil
	}
	if !membership.Eligible(status, s.settings().AllowedPlanIDs) {
		return passthrough, nil
	}

	row, err := s.ledger.GetCurrent(ctx, userID)
	if errors.Is(err, apperrors.ErrBudgetPeriodNotFound) {
		row, err = s.ledger.Initialize(ctx, userID, status.MembershipID)
	}
	if err != nil {
		logger.Get().Warnw("budget lookup failed, selling at regular price",
			"user_id", userID, "error", err)
		return passthrough, nil
	}
	if row.Exhausted() {
		return passthrough, nil
	}

	pct, err := s.rules.PercentFor(ctx, productID, status.PlanIDs)
	if err != nil || !pct.IsPositive() {
		return passthrough, nil
	}

	// Discount from the regular price, not the incoming one, so a price
	// that already carries a discount is not discounted twice.
	base := price
	if s.catalog != nil {
		if regular, catErr := s.catalog.RegularPrice(ctx, productID); catErr == nil && regular.IsPositive() {
			base = regular
		}
	}

	discount := money.Percent(base, pct)
	if !discount.IsPositive() {
		return passthrough, nil
	}
	if discount.GreaterThan(row.RemainingBudget) {
		s.intents.Drop(userID, productID)
		return passthrough, nil
	}

	final := money.Round(base.Sub(discount))
	s.intents.Record(userID, productID, DiscountIntent{
		OriginalPrice:   base,
		DiscountAmount:  discount,
		DiscountedPrice: final,
	})

	return &Quote{
		ProductID:       productID,
		OriginalPrice:   base,
		DiscountAmount:  discount,
		FinalPrice:      final,
		DiscountApplied: true,
	}, nil
}
