/*
maintenance.go - Bulk maintenance and admin overrides

PURPOSE:
  The operations an administrator triggers: order backfill, registration
  bonus catch-up, rate-change rescaling, duplicate-row healing, absolute
  point-setting, and access revocation.

RESUMABILITY:
  Bulk operations are interruptible and re-runnable. Backfill and catch-up
  never double-credit because they honor the same markers the live
  triggers set; a re-run after a crash picks up exactly the unmarked
  remainder. Per-item failures are logged and skipped, never abort the
  batch; each run reports a count of records newly credited.
*/
package points

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ADMIN OVERRIDES
// =============================================================================

// SetAbsolutePoints pins a user's total to an exact value and returns the
// previous total. Fails with ErrRecordNotFound when the user has no ledger
// row; unlike accrual paths, this one never creates rows silently.
func (e *Engine) SetAbsolutePoints(ctx context.Context, userID UserID, value int64) (previous int64, err error) {
	if value < 0 {
		return 0, &ValidationError{Field: "points", Message: fmt.Sprintf("must not be negative, got %d", value)}
	}
	prev, err := e.Store.SetAbsolute(ctx, userID, value)
	if err != nil {
		if IsNotFound(err) {
			return 0, err
		}
		return 0, &StoreError{Op: "set absolute points", Err: err}
	}
	return prev, nil
}

// Revoke denies all point visibility and spending for a user.
func (e *Engine) Revoke(ctx context.Context, userID UserID) error {
	if err := e.Store.SetStanding(ctx, userID, StandingRevoked); err != nil {
		return &StoreError{Op: "revoke", Err: err}
	}
	return nil
}

// Restore lifts a revocation.
func (e *Engine) Restore(ctx context.Context, userID UserID) error {
	if err := e.Store.SetStanding(ctx, userID, StandingActive); err != nil {
		return &StoreError{Op: "restore", Err: err}
	}
	return nil
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// BackfillOrders awards purchase points for every completed order that
// still lacks the accrual marker. Orders that fail to load or credit are
// skipped, not fatal. Returns the count of orders newly credited.
func (e *Engine) BackfillOrders(ctx context.Context, cfg Config) (int, error) {
	orders, err := e.Orders.ListCompletedOrders(ctx)
	if err != nil {
		return 0, &StoreError{Op: "list completed orders", Err: err}
	}

	credited := 0
	for _, o := range orders {
		if o.Awarded {
			continue
		}
		pts, err := e.AwardPurchasePoints(ctx, o.ID, cfg)
		if err != nil {
			log.Printf("points: backfill skipping order %s: %v", o.ID, err)
			continue
		}
		if pts > 0 {
			credited++
		}
	}
	return credited, nil
}

// AwardExistingUsersBonus runs the registration-bonus catch-up: every
// known user without the bonus-awarded marker gets the configured bonus
// (creating their ledger row if needed) and the marker. Users already
// carrying the marker are untouched. Returns the count of users newly
// credited.
func (e *Engine) AwardExistingUsersBonus(ctx context.Context, cfg Config) (int, error) {
	cfg = cfg.Normalize()
	if cfg.RegistrationBonus <= 0 {
		return 0, nil
	}

	ids, err := e.Users.ListUserIDs(ctx)
	if err != nil {
		return 0, &StoreError{Op: "list users", Err: err}
	}

	credited := 0
	for _, id := range ids {
		awarded, err := e.Bonus.BonusAwarded(ctx, id)
		if err != nil {
			log.Printf("points: bonus catch-up skipping user %s: %v", id, err)
			continue
		}
		if awarded {
			continue
		}
		if _, err := e.AwardRegistrationBonus(ctx, id, cfg); err != nil {
			log.Printf("points: bonus catch-up failed for user %s: %v", id, err)
			continue
		}
		credited++
	}
	return credited, nil
}

// RescaleOnRateChange rescales every record's points after a conversion
// rate change: points = floor(points * oldRate/newRate). A no-op when the
// clamped rates are numerically equal. Always followed by MergeDuplicates.
// Returns the rescaled-row and merged-away-row counts.
//
// This applies to pinned records too, which contradicts the pinning intent
// but matches the long-standing behavior admins rely on; see DESIGN.md
// before changing it.
func (e *Engine) RescaleOnRateChange(ctx context.Context, oldRate, newRate decimal.Decimal) (rescaled, merged int64, err error) {
	if ClampRate(oldRate).Equal(ClampRate(newRate)) {
		merged, err = e.MergeDuplicates(ctx)
		return 0, merged, err
	}

	factor := RescaleFactor(oldRate, newRate)
	rescaled, err = e.Store.RescaleAll(ctx, factor)
	if err != nil {
		return 0, 0, &StoreError{Op: "rescale", Err: err}
	}
	merged, err = e.MergeDuplicates(ctx)
	return rescaled, merged, err
}

// MergeDuplicates heals duplicate ledger rows. Safe to run repeatedly.
// Invoked after any change to the bonus amount, purchase enablement,
// category restriction, or allowed-category list.
func (e *Engine) MergeDuplicates(ctx context.Context) (int64, error) {
	removed, err := e.Store.MergeDuplicates(ctx)
	if err != nil {
		return 0, &StoreError{Op: "merge duplicates", Err: err}
	}
	if removed > 0 {
		log.Printf("points: merged %d duplicate ledger rows", removed)
	}
	return removed, nil
}

// =============================================================================
// RAW READS
// =============================================================================

// GetRecord returns the stored aggregate for a user (zero-value when the
// user has no row). Exposed for the raw get_user_points boundary.
func (e *Engine) GetRecord(ctx context.Context, userID UserID) (LedgerRecord, error) {
	rec, err := e.Store.Get(ctx, userID)
	if err != nil {
		return LedgerRecord{}, &StoreError{Op: "read record", Err: err}
	}
	return rec, nil
}
