package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"memberbudget/internal/cache"
	"memberbudget/internal/config"
	"memberbudget/internal/membership"
	"memberbudget/internal/money"
	"memberbudget/internal/period"
	"memberbudget/internal/services"
	"memberbudget/internal/testutil"
)

type pricingFixture struct {
	svc       services.PricingServicer
	ledger    services.LedgerServicer
	intents   *services.IntentStore
	directory *testutil.FakeDirectory
	userID    string
}

func newPricingFixture(t *testing.T, db *gorm.DB, settings config.BudgetSettings) *pricingFixture {
	t.Helper()

	userID := testutil.NewUserID()
	directory := &testutil.FakeDirectory{
		Statuses: map[string]membership.Status{
			userID: {IsMember: true, MembershipID: "mem-1", PlanIDs: []string{"gold"}},
		},
	}
	ledger := services.NewLedgerService(
		db, cache.NewMemory(), time.Minute,
		settingsProvider(settings), directory,
		services.WithClock(testClock),
	)
	intents := services.NewIntentStore(time.Minute)
	svc := services.NewPricingService(
		ledger, directory,
		&testutil.FakeDiscountRules{Percent: settings.DiscountPercent},
		nil, intents, settingsProvider(settings),
	)
	return &pricingFixture{
		svc:       svc,
		ledger:    ledger,
		intents:   intents,
		directory: directory,
		userID:    userID,
	}
}

// reentrantRules quotes a price from inside PercentFor, the way a rules
// engine that renders prices would. The nested quote must pass through.
type reentrantRules struct {
	t         *testing.T
	svc       services.PricingServicer
	percent   decimal.Decimal
	userID    string
	nestedRan bool
}

func (r *reentrantRules) PercentFor(ctx context.Context, productID string, planIDs []string) (decimal.Decimal, error) {
	r.nestedRan = true
	nested, err := r.svc.QuotePrice(ctx, r.userID, productID, money.MustParse("25.00"))
	if err != nil {
		r.t.Fatalf("nested quote failed: %v", err)
	}
	if nested.DiscountApplied {
		r.t.Error("nested quote must not discount")
	}
	return r.percent, nil
}

func TestQuotePrice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	ctx := context.Background()

	t.Run("discounts within budget", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		testutil.CreateTestBudgetPeriod(t, db, f.userID, period.Current(testClock),
			decimal.NewFromInt(300), decimal.Zero)

		quote, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)

		if !quote.DiscountApplied {
			t.Fatal("expected a discount")
		}
		testutil.AssertDecimalEqual(t, quote.DiscountAmount, money.MustParse("5.00"))
		testutil.AssertDecimalEqual(t, quote.FinalPrice, money.MustParse("20.00"))

		intent, ok := f.intents.Take(f.userID, "prod-1")
		if !ok {
			t.Fatal("expected a recorded intent")
		}
		testutil.AssertDecimalEqual(t, intent.DiscountAmount, money.MustParse("5.00"))
	})

	t.Run("quoting does not touch the ledger", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		testutil.CreateTestBudgetPeriod(t, db, f.userID, period.Current(testClock),
			decimal.NewFromInt(300), decimal.Zero)

		_, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)

		row, err := f.ledger.GetCurrent(ctx, f.userID)
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, row.UsedAmount, decimal.Zero)
	})

	t.Run("withholds the whole discount when it exceeds the remainder", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		// Remaining 5.00; a 20% discount on 30.00 would need 6.00.
		testutil.CreateTestBudgetPeriod(t, db, f.userID, period.Current(testClock),
			decimal.NewFromInt(300), money.MustParse("295.00"))

		quote, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("30.00"))
		testutil.AssertNoError(t, err)

		if quote.DiscountApplied {
			t.Fatal("expected no discount")
		}
		testutil.AssertDecimalEqual(t, quote.FinalPrice, money.MustParse("30.00"))
		if _, ok := f.intents.Take(f.userID, "prod-1"); ok {
			t.Error("expected no intent for a withheld discount")
		}
	})

	t.Run("discount exactly equal to the remainder applies", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		// Remaining 5.00; 20% of 25.00 is exactly 5.00.
		testutil.CreateTestBudgetPeriod(t, db, f.userID, period.Current(testClock),
			decimal.NewFromInt(300), money.MustParse("295.00"))

		quote, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		if !quote.DiscountApplied {
			t.Fatal("expected a discount")
		}
		testutil.AssertDecimalEqual(t, quote.FinalPrice, money.MustParse("20.00"))
	})

	t.Run("exhausted budget sells at full price", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		testutil.CreateTestBudgetPeriod(t, db, f.userID, period.Current(testClock),
			decimal.NewFromInt(300), decimal.NewFromInt(300))

		quote, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		if quote.DiscountApplied {
			t.Fatal("expected no discount")
		}
	})

	t.Run("initializes a missing period lazily", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())

		quote, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		if !quote.DiscountApplied {
			t.Fatal("expected a discount against a freshly initialized period")
		}

		row, err := f.ledger.GetCurrent(ctx, f.userID)
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, row.TotalBudget, decimal.NewFromInt(300))
	})

	t.Run("non-members pass through", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		outsider := testutil.NewUserID()

		quote, err := f.svc.QuotePrice(ctx, outsider, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		if quote.DiscountApplied {
			t.Fatal("expected no discount for a non-member")
		}
	})

	t.Run("directory failure degrades to full price", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		f.directory.Err = errors.New("platform down")

		quote, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		if quote.DiscountApplied {
			t.Fatal("expected no discount when the directory is unreachable")
		}
	})

	t.Run("nested quote from a rules provider passes through", func(t *testing.T) {
		settings := testutil.DefaultSettings()
		userID := testutil.NewUserID()
		directory := &testutil.FakeDirectory{
			Statuses: map[string]membership.Status{
				userID: {IsMember: true, MembershipID: "mem-1", PlanIDs: []string{"gold"}},
			},
		}
		ledger := services.NewLedgerService(
			db, cache.NewMemory(), time.Minute,
			settingsProvider(settings), directory,
			services.WithClock(testClock),
		)
		intents := services.NewIntentStore(time.Minute)
		rules := &reentrantRules{t: t, percent: settings.DiscountPercent, userID: userID}
		svc := services.NewPricingService(
			ledger, directory, rules, nil, intents, settingsProvider(settings),
		)
		rules.svc = svc
		testutil.CreateTestBudgetPeriod(t, db, userID, period.Current(testClock),
			decimal.NewFromInt(300), decimal.Zero)

		outer, err := svc.QuotePrice(ctx, userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		if !outer.DiscountApplied {
			t.Fatal("expected outer quote to discount")
		}
		testutil.AssertDecimalEqual(t, outer.FinalPrice, money.MustParse("20.00"))
		if !rules.nestedRan {
			t.Fatal("expected the rules provider to re-enter the quote path")
		}
	})

	t.Run("re-quoting overwrites the intent", func(t *testing.T) {
		f := newPricingFixture(t, db, testutil.DefaultSettings())
		testutil.CreateTestBudgetPeriod(t, db, f.userID, period.Current(testClock),
			decimal.NewFromInt(300), decimal.Zero)

		_, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		_, err = f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("40.00"))
		testutil.AssertNoError(t, err)

		intent, ok := f.intents.Take(f.userID, "prod-1")
		if !ok {
			t.Fatal("expected an intent")
		}
		testutil.AssertDecimalEqual(t, intent.DiscountAmount, money.MustParse("8.00"))
	})

	t.Run("catalog price guards against double discounting", func(t *testing.T) {
		settings := testutil.DefaultSettings()
		userID := testutil.NewUserID()
		directory := &testutil.FakeDirectory{
			Statuses: map[string]membership.Status{
				userID: {IsMember: true, MembershipID: "mem-1", PlanIDs: []string{"gold"}},
			},
		}
		ledger := services.NewLedgerService(
			db, cache.NewMemory(), time.Minute,
			settingsProvider(settings), directory,
			services.WithClock(testClock),
		)
		intents := services.NewIntentStore(time.Minute)
		svc := services.NewPricingService(
			ledger, directory,
			&testutil.FakeDiscountRules{Percent: settings.DiscountPercent},
			&testutil.FakeCatalog{Prices: map[string]decimal.Decimal{
				"prod-1": money.MustParse("25.00"),
			}},
			intents, settingsProvider(settings),
		)
		testutil.CreateTestBudgetPeriod(t, db, userID, period.Current(testClock),
			decimal.NewFromInt(300), decimal.Zero)

		// The incoming price already carries the discount; the catalog's
		// regular price keeps the result stable.
		quote, err := svc.QuotePrice(ctx, userID, "prod-1", money.MustParse("20.00"))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, quote.FinalPrice, money.MustParse("20.00"))
		testutil.AssertDecimalEqual(t, quote.DiscountAmount, money.MustParse("5.00"))
	})

	t.Run("ineligible plan passes through", func(t *testing.T) {
		settings := testutil.DefaultSettings()
		settings.AllowedPlanIDs = []string{"platinum"}
		f := newPricingFixture(t, db, settings)

		quote, err := f.svc.QuotePrice(ctx, f.userID, "prod-1", money.MustParse("25.00"))
		testutil.AssertNoError(t, err)
		if quote.DiscountApplied {
			t.Fatal("expected no discount for a plan outside the allow-list")
		}
	})
}
