/*
redemption.go - Redemption engine

PURPOSE:
  Validates sufficient balance and atomically moves points from available
  to redeemed. Insufficient balance is a refusal (false), not an error:
  two concurrent redemptions can both pass a read-check, so the store's
  conditional update is the only arbiter.
*/
package points

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Redeem attempts to spend n points. Returns true when the transfer
// happened, false (with no mutation) when the stored balance was
// insufficient or the user is revoked.
func (e *Engine) Redeem(ctx context.Context, userID UserID, n int64) (bool, error) {
	if n <= 0 {
		return false, &ValidationError{Field: "points", Message: fmt.Sprintf("must be positive, got %d", n)}
	}

	rec, err := e.Store.Get(ctx, userID)
	if err != nil {
		return false, &StoreError{Op: "read record", Err: err}
	}
	if rec.Revoked() {
		return false, nil
	}

	ok, err := e.Store.Redeem(ctx, userID, n)
	if err != nil {
		return false, &StoreError{Op: "redeem", Err: err}
	}
	return ok, nil
}

// RedemptionCostFor quotes the point cost of covering a monetary amount,
// rounded up. Asymmetric with accrual's floor on purpose.
func (e *Engine) RedemptionCostFor(amount decimal.Decimal, cfg Config) int64 {
	return RedemptionCost(amount, cfg.Normalize().ConversionRate)
}
