package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"memberbudget/internal/cache"
	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/logger"
	"memberbudget/internal/membership"
	"memberbudget/internal/models"
	"memberbudget/internal/money"
	"memberbudget/internal/pagination"
	"memberbudget/internal/period"
)

// commitAttempts bounds the optimistic retry loop: one fresh read after a
// lost race, then give up with a conflict error.
const commitAttempts = 2

// ledgerService owns all reads and writes of BudgetPeriod rows.
type ledgerService struct {
	db            *gorm.DB
	cache         cache.Cache
	cacheTTL      time.Duration
	clock         period.Clock
	settings      SettingsProvider
	monthlyAmount MonthlyAmountFunc
	directory     membership.Directory
}

// LedgerOption customizes a ledger service.
type LedgerOption func(*ledgerService)

// WithClock substitutes the clock, mainly for tests.
func WithClock(clock period.Clock) LedgerOption {
	return func(s *ledgerService) { s.clock = clock }
}

// WithMonthlyAmountFunc installs a per-member allowance override.
func WithMonthlyAmountFunc(fn MonthlyAmountFunc) LedgerOption {
	return func(s *ledgerService) { s.monthlyAmount = fn }
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(
	db *gorm.DB,
	c cache.Cache,
	cacheTTL time.Duration,
	settings SettingsProvider,
	directory membership.Directory,
	opts ...LedgerOption,
) LedgerServicer {
	s := &ledgerService{
		db:        db,
		cache:     c,
		cacheTTL:  cacheTTL,
		clock:     period.RealClock{},
		settings:  settings,
		directory: directory,
	}
	s.monthlyAmount = func(ctx context.Context, userID, membershipID string) decimal.Decimal {
		return s.settings().MonthlyAmount
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func budgetCacheKey(userID string, p period.Period) string {
	return fmt.Sprintf("budget:%s:%04d-%02d", userID, p.Year, p.Month)
}

// invalidate drops the cache entry for one user+period. Called synchronously
// by every mutation before it returns success.
func (s *ledgerService) invalidate(ctx context.Context, userID string, p period.Period) {
	s.cache.Invalidate(ctx, budgetCacheKey(userID, p))
}

// GetCurrent returns the row for (user, current month, current year).
// The cache key includes the period, so a month boundary naturally starts
// from a clean slate without explicit invalidation.
func (s *ledgerService) GetCurrent(ctx context.Context, userID string) (*models.BudgetPeriod, error) {
	cur := period.Current(s.clock)
	key := budgetCacheKey(userID, cur)

	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached models.BudgetPeriod
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		// Unreadable entry: drop it and fall through to the store.
		s.cache.Invalidate(ctx, key)
	}

	var row models.BudgetPeriod
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND month = ? AND year = ?", userID, cur.Month, cur.Year).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if raw, err := json.Marshal(&row); err == nil {
		s.cache.Set(ctx, key, raw, s.cacheTTL)
	}
	return &row, nil
}

// Initialize is idempotent: an existing row for the current period is
// returned unchanged. A new row gets the monthly allowance plus, when the
// carryover flag is on, whatever remained in the immediately preceding
// period.
func (s *ledgerService) Initialize(ctx context.Context, userID, membershipID string) (*models.BudgetPeriod, error) {
	if userID == "" || membershipID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "user and membership are required")
	}

	cur := period.Current(s.clock)

	var existing models.BudgetPeriod
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND month = ? AND year = ?", userID, cur.Month, cur.Year).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	total := s.computeTotal(ctx, s.db.WithContext(ctx), userID, membershipID, cur)
	row := &models.BudgetPeriod{
		UserID:          userID,
		MembershipID:    membershipID,
		TotalBudget:     total,
		UsedAmount:      decimal.Zero,
		RemainingBudget: total,
		Month:           cur.Month,
		Year:            cur.Year,
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// A concurrent request may have won the unique-index race; the row
		// it created is the answer then.
		var raced models.BudgetPeriod
		if readErr := s.db.WithContext(ctx).
			Where("user_id = ? AND month = ? AND year = ?", userID, cur.Month, cur.Year).
			First(&raced).Error; readErr == nil {
			return &raced, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.invalidate(ctx, userID, cur)
	s.debugw("initialized budget period",
		"user_id", userID, "membership_id", membershipID,
		"month", cur.Month, "year", cur.Year, "total", total)
	return row, nil
}

// computeTotal resolves the allowance for a fresh or reset period:
// monthly amount (through the override hook) plus optional carryover from
// the period immediately before target.
func (s *ledgerService) computeTotal(ctx context.Context, tx *gorm.DB, userID, membershipID string, target period.Period) decimal.Decimal {
	total := s.monthlyAmount(ctx, userID, membershipID)
	if !s.settings().CarryoverEnabled {
		return money.Round(total)
	}

	prev := target.Previous()
	var prevRow models.BudgetPeriod
	err := tx.
		Where("user_id = ? AND month = ? AND year = ?", userID, prev.Month, prev.Year).
		First(&prevRow).Error
	if err != nil {
		// No previous period means zero carryover.
		return money.Round(total)
	}
	return money.Round(total.Add(prevRow.RemainingBudget))
}

// CommitUsage is the only order-driven mutation. It applies a non-negative
// delta with an optimistic compare-and-set on (used_amount, total_budget),
// retrying once with fresh data when a concurrent writer got there first.
func (s *ledgerService) CommitUsage(ctx context.Context, periodID string, delta decimal.Decimal) (*models.BudgetPeriod, error) {
	if delta.IsNegative() {
		return nil, apperrors.ErrNegativeAmount
	}

	for attempt := 0; attempt < commitAttempts; attempt++ {
		var row models.BudgetPeriod
		if err := s.db.WithContext(ctx).First(&row, "id = ?", periodID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrBudgetPeriodNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if delta.IsZero() {
			return &row, nil
		}

		used := row.UsedAmount.Add(delta)
		if used.GreaterThan(row.TotalBudget) {
			used = row.TotalBudget
		}
		remaining := money.ClampNonNegative(row.TotalBudget.Sub(used))

		res := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
			Where("id = ? AND used_amount = ? AND total_budget = ?", periodID, row.UsedAmount, row.TotalBudget).
			Updates(map[string]interface{}{
				"used_amount":      used,
				"remaining_budget": remaining,
			})
		if res.Error != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected == 1 {
			s.invalidate(ctx, row.UserID, period.Period{Month: row.Month, Year: row.Year})
			row.UsedAmount = used
			row.RemainingBudget = remaining
			s.debugw("committed budget usage",
				"period_id", periodID, "delta", delta, "used", used, "remaining", remaining)
			return &row, nil
		}
		// Lost the race; loop re-reads and tries once more.
	}
	return nil, apperrors.ErrConcurrencyConflict
}

// SetAbsolute is the admin override: the total changes, usage stays.
func (s *ledgerService) SetAbsolute(ctx context.Context, periodID string, newTotal decimal.Decimal) (*models.BudgetPeriod, error) {
	if newTotal.IsNegative() {
		return nil, apperrors.ErrNegativeAmount
	}
	newTotal = money.Round(newTotal)

	for attempt := 0; attempt < commitAttempts; attempt++ {
		var row models.BudgetPeriod
		if err := s.db.WithContext(ctx).First(&row, "id = ?", periodID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrBudgetPeriodNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		remaining := money.ClampNonNegative(newTotal.Sub(row.UsedAmount))

		res := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
			Where("id = ? AND used_amount = ? AND total_budget = ?", periodID, row.UsedAmount, row.TotalBudget).
			Updates(map[string]interface{}{
				"total_budget":     newTotal,
				"remaining_budget": remaining,
			})
		if res.Error != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected == 1 {
			s.invalidate(ctx, row.UserID, period.Period{Month: row.Month, Year: row.Year})
			row.TotalBudget = newTotal
			row.RemainingBudget = remaining
			return &row, nil
		}
	}
	return nil, apperrors.ErrConcurrencyConflict
}

// ResetToMonthly restores a single period to the configured monthly amount,
// re-read at call time so a settings change is picked up, with usage wiped.
// Distinct from bulk rollover: no carryover applies here.
func (s *ledgerService) ResetToMonthly(ctx context.Context, periodID string) (*models.BudgetPeriod, error) {
	var row models.BudgetPeriod
	if err := s.db.WithContext(ctx).First(&row, "id = ?", periodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	total := money.Round(s.monthlyAmount(ctx, row.UserID, row.MembershipID))
	res := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
		Where("id = ?", periodID).
		Updates(map[string]interface{}{
			"total_budget":     total,
			"used_amount":      decimal.Zero,
			"remaining_budget": total,
		})
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}

	s.invalidate(ctx, row.UserID, period.Period{Month: row.Month, Year: row.Year})
	row.TotalBudget = total
	row.UsedAmount = decimal.Zero
	row.RemainingBudget = total
	return &row, nil
}

// BulkRollover creates or resets the target period for every eligible
// active member, inside a single transaction. One bad row aborts the lot:
// correctness over throughput for a job that runs once a month.
func (s *ledgerService) BulkRollover(ctx context.Context, target period.Period) (*RolloverResult, error) {
	if !target.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid rollover period")
	}
	if s.directory == nil {
		return nil, apperrors.ErrMembershipUnavailable
	}

	members, err := s.directory.ActiveMembers(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMembershipUnavailable, err)
	}

	allowed := s.settings().AllowedPlanIDs
	eligible := make([]membership.Member, 0, len(members))
	for _, m := range members {
		if membership.PlanEligible(m.PlanIDs, allowed) {
			eligible = append(eligible, m)
		}
	}

	result := &RolloverResult{}
	affected := make([]string, 0, len(eligible))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range eligible {
			total := s.computeTotal(ctx, tx, m.UserID, m.MembershipID, target)

			var existing models.BudgetPeriod
			findErr := tx.
				Where("user_id = ? AND month = ? AND year = ?", m.UserID, target.Month, target.Year).
				First(&existing).Error

			switch {
			case findErr == nil:
				res := tx.Model(&models.BudgetPeriod{}).
					Where("id = ?", existing.ID).
					Updates(map[string]interface{}{
						"membership_id":    m.MembershipID,
						"total_budget":     total,
						"used_amount":      decimal.Zero,
						"remaining_budget": total,
					})
				if res.Error != nil {
					return fmt.Errorf("reset period for user %s: %w", m.UserID, res.Error)
				}
				result.ResetCount++

			case errors.Is(findErr, gorm.ErrRecordNotFound):
				row := &models.BudgetPeriod{
					UserID:          m.UserID,
					MembershipID:    m.MembershipID,
					TotalBudget:     total,
					UsedAmount:      decimal.Zero,
					RemainingBudget: total,
					Month:           target.Month,
					Year:            target.Year,
				}
				if createErr := tx.Create(row).Error; createErr != nil {
					return fmt.Errorf("create period for user %s: %w", m.UserID, createErr)
				}
				result.CreatedCount++

			default:
				return fmt.Errorf("lookup period for user %s: %w", m.UserID, findErr)
			}

			affected = append(affected, m.UserID)
		}
		return nil
	})
	if err != nil {
		logger.Get().Errorw("bulk rollover aborted, no rows were changed",
			"month", target.Month, "year", target.Year, "error", err)
		return nil, apperrors.Wrap(apperrors.ErrBulkRolloverFailed, err)
	}

	for _, userID := range affected {
		s.invalidate(ctx, userID, target)
	}

	logger.Get().Infow("bulk rollover complete",
		"month", target.Month, "year", target.Year,
		"reset", result.ResetCount, "created", result.CreatedCount)
	return result, nil
}

// ZeroRemaining exhausts the current period when the membership that funds
// it goes inactive. A period funded by a different membership is untouched.
func (s *ledgerService) ZeroRemaining(ctx context.Context, userID, membershipID string) error {
	cur := period.Current(s.clock)
	var row models.BudgetPeriod
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND month = ? AND year = ?", userID, cur.Month, cur.Year).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if row.MembershipID != membershipID {
		return nil
	}

	// used_amount copies total_budget in SQL so a total changed since the
	// read still ends at zero remaining.
	res := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"used_amount":      gorm.Expr("total_budget"),
			"remaining_budget": decimal.Zero,
		})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}

	s.invalidate(ctx, userID, period.Period{Month: row.Month, Year: row.Year})
	s.debugw("zeroed remaining budget on membership deactivation",
		"user_id", userID, "membership_id", membershipID)
	return nil
}

// History lists a user's periods, newest first. Limit is clamped to 1..24.
func (s *ledgerService) History(ctx context.Context, userID string, limit int) ([]models.BudgetPeriod, error) {
	if limit < 1 {
		limit = 12
	}
	if limit > 24 {
		limit = 24
	}

	var rows []models.BudgetPeriod
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("year DESC, month DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rows, nil
}

// ListPeriods pages through the ledger rows of one period for the admin
// surface, optionally narrowed to a single user.
func (s *ledgerService) ListPeriods(ctx context.Context, target period.Period, page pagination.PageRequest, userID string) (*pagination.PageResponse[models.BudgetPeriod], error) {
	if !target.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid period")
	}
	page.Defaults()

	base := s.db.WithContext(ctx).Model(&models.BudgetPeriod{}).
		Where("month = ? AND year = ?", target.Month, target.Year)
	if userID != "" {
		base = base.Where("user_id = ?", userID)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var rows []models.BudgetPeriod
	if err := base.Order("user_id ASC").Scopes(pagination.Paginate(page)).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(rows, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// Statistics aggregates one period's rows for the reports endpoint.
func (s *ledgerService) Statistics(ctx context.Context, target period.Period) (*PeriodStatistics, error) {
	if !target.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid period")
	}

	var rows []models.BudgetPeriod
	err := s.db.WithContext(ctx).
		Where("month = ? AND year = ?", target.Month, target.Year).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	stats := &PeriodStatistics{
		Month:            target.Month,
		Year:             target.Year,
		MemberCount:      len(rows),
		TotalBudget:      decimal.Zero,
		TotalUsed:        decimal.Zero,
		TotalRemaining:   decimal.Zero,
		AvgUsedPerMember: decimal.Zero,
	}
	for _, row := range rows {
		stats.TotalBudget = stats.TotalBudget.Add(row.TotalBudget)
		stats.TotalUsed = stats.TotalUsed.Add(row.UsedAmount)
		stats.TotalRemaining = stats.TotalRemaining.Add(row.RemainingBudget)

		if money.UsagePercent(row.UsedAmount, row.TotalBudget) >= 50 {
			stats.MembersOverHalf++
		}
		if row.UsedAmount.IsZero() {
			stats.MembersNoUsage++
		}
	}
	if len(rows) > 0 {
		stats.AvgUsedPerMember = money.Round(stats.TotalUsed.Div(decimal.NewFromInt(int64(len(rows)))))
	}
	return stats, nil
}

// debugw logs only when verbose ledger logging is switched on.
func (s *ledgerService) debugw(msg string, kv ...interface{}) {
	if s.settings().DebugLogging {
		logger.Get().Debugw(msg, kv...)
	}
}
