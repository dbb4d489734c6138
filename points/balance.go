/*
balance.go - Balance resolver

PURPOSE:
  Computes the effective available balance for display and spending
  decisions. This is the trickiest invariant in the system: a pinned
  balance is a frozen override, a computed balance is always a live
  function of historical spend and the CURRENT rate. Both subtract the
  same redeemed counter.

RESOLUTION, exhaustively by record state:
  revoked (either mode)  -> 0
  pinned                 -> points - redeemed
  computed               -> registrationBonus + purchasePoints - redeemed

  where purchasePoints = floor(qualifyingSpend / rate), recomputed live
  from completed/processing order totals, optionally filtered to orders
  containing an allowed category.

Read-only: nothing here writes to the store, and absence of a record
resolves to a zero-value balance rather than an error.
*/
package points

import (
	"context"

	"github.com/shopspring/decimal"
)

// AvailablePoints resolves the spendable balance for a user.
func (e *Engine) AvailablePoints(ctx context.Context, userID UserID, cfg Config) (int64, error) {
	b, err := e.Breakdown(ctx, userID, cfg)
	if err != nil {
		return 0, err
	}
	return b.Available, nil
}

// IsRevoked reports whether the user's access to points is revoked.
func (e *Engine) IsRevoked(ctx context.Context, userID UserID) (bool, error) {
	rec, err := e.Store.Get(ctx, userID)
	if err != nil {
		return false, &StoreError{Op: "read record", Err: err}
	}
	return rec.Revoked(), nil
}

// Breakdown returns the full balance decomposition for dashboards.
func (e *Engine) Breakdown(ctx context.Context, userID UserID, cfg Config) (Breakdown, error) {
	cfg = cfg.Normalize()

	rec, err := e.Store.Get(ctx, userID)
	if err != nil {
		return Breakdown{}, &StoreError{Op: "read record", Err: err}
	}

	b := Breakdown{
		Total:       rec.Points,
		Redeemed:    rec.RedeemedPoints,
		ManuallySet: rec.Pinned(),
		Revoked:     rec.Revoked(),
	}
	if rec.Pinned() {
		b.ManualValue = rec.Points
	}

	switch {
	case rec.Revoked():
		b.Available = 0
	case rec.Pinned():
		b.Available = rec.Points - rec.RedeemedPoints
	default:
		purchase, err := e.purchasePoints(ctx, userID, cfg)
		if err != nil {
			return Breakdown{}, err
		}
		b.RegistrationBonus = cfg.RegistrationBonus
		b.PurchasePoints = purchase
		b.Available = cfg.RegistrationBonus + purchase - rec.RedeemedPoints
	}
	return b, nil
}

// purchasePoints recomputes the purchase-derived component from qualifying
// order totals at the current rate. Not stored.
func (e *Engine) purchasePoints(ctx context.Context, userID UserID, cfg Config) (int64, error) {
	if !cfg.PurchaseEnabled {
		return 0, nil
	}

	orders, err := e.Orders.ListCompletedOrdersByUser(ctx, userID)
	if err != nil {
		return 0, &StoreError{Op: "list orders", Err: err}
	}

	spend := decimal.Zero
	for _, o := range orders {
		if cfg.CategoryRestricted {
			ok, err := e.Orders.OrderQualifies(ctx, o.ID, cfg.AllowedCategories)
			if err != nil {
				return 0, &StoreError{Op: "check order categories", Err: err}
			}
			if !ok {
				continue
			}
		}
		spend = spend.Add(o.Total)
	}
	return PointsForAmount(spend, cfg.ConversionRate), nil
}
