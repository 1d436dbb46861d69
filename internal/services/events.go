package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/logger"
	"memberbudget/internal/membership"
	"memberbudget/internal/period"
)

// Event is a lifecycle signal the budget system reacts to.
type Event interface {
	Kind() string
}

// MembershipActivated fires when a user's membership becomes active.
type MembershipActivated struct {
	UserID       string
	MembershipID string
	PlanIDs      []string
}

func (MembershipActivated) Kind() string { return "membership.activated" }

// MembershipDeactivated fires when a user's membership lapses or is
// cancelled.
type MembershipDeactivated struct {
	UserID       string
	MembershipID string
}

func (MembershipDeactivated) Kind() string { return "membership.deactivated" }

// SubscriptionPaymentCompleted fires when a recurring subscription charge
// succeeds.
type SubscriptionPaymentCompleted struct {
	UserID string
}

func (SubscriptionPaymentCompleted) Kind() string { return "subscription.payment_completed" }

// OrderCompleted fires when an order reaches its final paid state.
type OrderCompleted struct {
	OrderID string
}

func (OrderCompleted) Kind() string { return "order.completed" }

// PeriodBoundaryReached fires when the scheduler crosses into a new month.
type PeriodBoundaryReached struct {
	Target period.Period
}

func (PeriodBoundaryReached) Kind() string { return "period.boundary_reached" }

// Dispatcher routes events to the services that react to them.
type Dispatcher struct {
	ledger     LedgerServicer
	settlement SettlementServicer
	directory  membership.Directory
	settings   SettingsProvider
}

// NewDispatcher creates an event dispatcher.
func NewDispatcher(ledger LedgerServicer, settlement SettlementServicer, directory membership.Directory, settings SettingsProvider) *Dispatcher {
	return &Dispatcher{
		ledger:     ledger,
		settlement: settlement,
		directory:  directory,
		settings:   settings,
	}
}

// Dispatch handles one event. Order settlement errors are logged and
// swallowed so a ledger hiccup never fails the checkout that emitted the
// event; everything else propagates to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case MembershipActivated:
		if !membership.PlanEligible(e.PlanIDs, d.settings().AllowedPlanIDs) {
			return nil
		}
		_, err := d.ledger.Initialize(ctx, e.UserID, e.MembershipID)
		return err

	case MembershipDeactivated:
		return d.ledger.ZeroRemaining(ctx, e.UserID, e.MembershipID)

	case SubscriptionPaymentCompleted:
		row, err := d.ledger.GetCurrent(ctx, e.UserID)
		if errors.Is(err, apperrors.ErrBudgetPeriodNotFound) {
			// First payment of the month before any period exists: create
			// one instead of resetting.
			status, dirErr := d.directory.Status(ctx, e.UserID)
			if dirErr != nil {
				return apperrors.Wrap(apperrors.ErrMembershipUnavailable, dirErr)
			}
			if !membership.Eligible(status, d.settings().AllowedPlanIDs) {
				return nil
			}
			_, err = d.ledger.Initialize(ctx, e.UserID, status.MembershipID)
			return err
		}
		if err != nil {
			return err
		}
		_, err = d.ledger.ResetToMonthly(ctx, row.ID)
		return err

	case OrderCompleted:
		if _, err := d.settlement.Settle(ctx, e.OrderID); err != nil {
			logger.Get().Errorw("order settlement failed",
				"order_id", e.OrderID, "error", err)
		}
		return nil

	case PeriodBoundaryReached:
		_, err := d.ledger.BulkRollover(ctx, e.Target)
		return err

	default:
		return fmt.Errorf("unhandled event kind %q", event.Kind())
	}
}
