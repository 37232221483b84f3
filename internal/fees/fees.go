// Package fees charges library users for the books they have out.
//
// Fees accrue when a user opens the landing page, never on a schedule. Each
// visit adds Policy.Charges(due, today) charges of Policy.PerCharge for every
// reservation that has been picked up.
package fees

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database/reservations"
	"github.com/mrlokans/library/internal/database/users"
)

// DefaultPerCharge is the amount of a single charge.
var DefaultPerCharge = decimal.RequireFromString("0.01")

var ErrInvalidPolicy = errors.New("invalid fee policy")

// Policy decides how much a checked-out reservation costs per visit.
type Policy struct {
	PerCharge decimal.Decimal
	Trigger   config.FeeTrigger
}

// DefaultPolicy charges 0.01 per day remaining until the due date, inclusive.
func DefaultPolicy() Policy {
	return Policy{PerCharge: DefaultPerCharge, Trigger: config.FeeTriggerBeforeDue}
}

// NewPolicy builds a policy from configuration. Empty fields fall back to the defaults.
func NewPolicy(cfg config.Fees) (Policy, error) {
	policy := DefaultPolicy()

	if cfg.PerCharge != "" {
		amount, err := decimal.NewFromString(cfg.PerCharge)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: fee per charge %q: %v", ErrInvalidPolicy, cfg.PerCharge, err)
		}
		if amount.IsNegative() {
			return Policy{}, fmt.Errorf("%w: fee per charge must not be negative", ErrInvalidPolicy)
		}
		policy.PerCharge = amount
	}

	switch cfg.Trigger {
	case "":
	case config.FeeTriggerBeforeDue, config.FeeTriggerOverdue:
		policy.Trigger = cfg.Trigger
	default:
		return Policy{}, fmt.Errorf("%w: unknown fee trigger %q", ErrInvalidPolicy, cfg.Trigger)
	}

	return policy, nil
}

// Charges returns how many charges a reservation due on due incurs today.
func (p Policy) Charges(due, today time.Time) int {
	days := circulation.DaysBetween(today, due)
	switch p.Trigger {
	case config.FeeTriggerOverdue:
		if days < 0 {
			return -days
		}
	default:
		if days > 0 {
			return days + 1
		}
	}
	return 0
}

// FeeLogger receives a record of every accrual that changed a balance.
type FeeLogger interface {
	LogFee(ctx context.Context, userID uint, charges int, amount decimal.Decimal)
}

// Accruer applies the fee policy to a user's balance.
type Accruer struct {
	db     *gorm.DB
	clock  circulation.Clock
	policy Policy
	audit  FeeLogger
}

// NewAccruer creates an accruer. audit may be nil.
func NewAccruer(db *gorm.DB, clock circulation.Clock, policy Policy, audit FeeLogger) *Accruer {
	return &Accruer{
		db:     db,
		clock:  clock,
		policy: policy,
		audit:  audit,
	}
}

// Policy returns the policy in effect.
func (a *Accruer) Policy() Policy {
	return a.policy
}

// Accrue charges actor for each of their checked-out reservations and
// returns the total added to their balance.
func (a *Accruer) Accrue(ctx context.Context, actor circulation.Actor) (decimal.Decimal, error) {
	if actor.UserID == 0 {
		return decimal.Zero, circulation.ErrNotAuthenticated
	}
	today := a.clock.Today()

	var (
		charges int
		total   decimal.Decimal
	)
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := reservations.NewRepository(tx).ListForUser(actor.UserID)
		if err != nil {
			return fmt.Errorf("failed to list reservations: %w", err)
		}

		for _, r := range open {
			if r.DueDate == nil {
				continue
			}
			charges += a.policy.Charges(circulation.StoredDate(*r.DueDate), today)
		}
		if charges == 0 {
			return nil
		}

		total = a.policy.PerCharge.Mul(decimal.NewFromInt(int64(charges)))
		if total.IsZero() {
			return nil
		}

		if _, err := users.NewRepository(tx).AddToBalance(actor.UserID, total); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return circulation.ErrUserNotFound
			}
			return fmt.Errorf("failed to update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	if !total.IsZero() {
		log.Printf("[FEES] Charged user %d %s (%d charges)", actor.UserID, total.String(), charges)
		if a.audit != nil {
			a.audit.LogFee(ctx, actor.UserID, charges, total)
		}
	}
	return total, nil
}
