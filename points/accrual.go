/*
accrual.go - Accrual engine: registration bonus and purchase credits

PURPOSE:
  Credits points for the two live triggers: registration and order
  completion. Each is idempotent against replay.

COMMIT ORDERING:
  For purchase accrual the order's marker is the commit point. The ledger
  credit happens first; the marker is set only after the credit succeeds.
  A crash between credit and marker-set risks double credit on retry, a
  crash between marker-set and credit risks silent point loss - we accept
  the first and log loudly, never the second. On credit failure the marker
  stays unset so a retry safely re-attempts.
*/
package points

import (
	"context"
	"fmt"
	"log"
)

// Engine ties the ledger store to its external collaborators. All methods
// take an explicit Config; the engine holds no settings of its own.
type Engine struct {
	Store  Store
	Users  UserDirectory
	Orders OrderSource
	Bonus  BonusMarkerStore
}

// NewEngine creates an engine over the given store and collaborators.
func NewEngine(store Store, users UserDirectory, orders OrderSource, bonus BonusMarkerStore) *Engine {
	return &Engine{Store: store, Users: users, Orders: orders, Bonus: bonus}
}

// =============================================================================
// REGISTRATION BONUS
// =============================================================================

// AwardRegistrationBonus credits the configured signup bonus and sets the
// per-user awarded marker. Returns the points credited (zero when the bonus
// is disabled).
//
// The live registration trigger fires once per signup, so no replay guard
// is needed here; the marker is still set so the bulk catch-up operation
// never double-awards users who registered while it was running.
func (e *Engine) AwardRegistrationBonus(ctx context.Context, userID UserID, cfg Config) (int64, error) {
	cfg = cfg.Normalize()
	if cfg.RegistrationBonus <= 0 {
		return 0, nil
	}

	if err := e.Store.UpsertAdd(ctx, userID, cfg.RegistrationBonus); err != nil {
		return 0, &StoreError{Op: "award registration bonus", Err: err}
	}
	if err := e.Bonus.SetBonusAwarded(ctx, userID); err != nil {
		// Credit landed but the marker did not: catch-up could re-award.
		// Surface it; the caller's retry path re-runs SetBonusAwarded only.
		return cfg.RegistrationBonus, &StoreError{Op: "set bonus marker", Err: err}
	}
	return cfg.RegistrationBonus, nil
}

// =============================================================================
// PURCHASE ACCRUAL
// =============================================================================

// AwardPurchasePoints credits points for a completed order. At most one
// award per order: the order's accrual marker makes duplicate completion
// events and backfill re-runs no-ops. Returns the points credited.
func (e *Engine) AwardPurchasePoints(ctx context.Context, orderID OrderID, cfg Config) (int64, error) {
	cfg = cfg.Normalize()

	order, err := e.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if order.Awarded {
		return 0, nil
	}

	// Guest order or nothing to award: mark as processed so backfill
	// never scans it again, and stop.
	if order.UserID == "" || !order.Total.IsPositive() {
		if err := e.Orders.SetAccrualMarker(ctx, orderID); err != nil {
			return 0, &StoreError{Op: "set accrual marker", Err: err}
		}
		return 0, nil
	}

	// Purchase accrual disabled: leave the marker unset so enabling the
	// program later lets backfill pick the order up.
	if !cfg.PurchaseEnabled {
		return 0, nil
	}

	pts := PointsForAmount(order.Total, cfg.ConversionRate)
	if pts > 0 {
		if err := e.Store.UpsertAdd(ctx, order.UserID, pts); err != nil {
			log.Printf("points: credit failed for order %s (user %s, %d pts): %v",
				orderID, order.UserID, pts, err)
			return 0, &StoreError{Op: "credit purchase points", Err: err}
		}
	}

	if err := e.Orders.SetAccrualMarker(ctx, orderID); err != nil {
		// Credit landed, marker did not; a replay would double-credit.
		log.Printf("points: marker set failed for order %s after credit: %v", orderID, err)
		return pts, &StoreError{Op: "set accrual marker", Err: err}
	}
	return pts, nil
}

// =============================================================================
// DIRECT CREDIT
// =============================================================================

// AddPoints credits an arbitrary amount. Used by the guest-to-member
// migration path and by collaborators that computed their own award.
func (e *Engine) AddPoints(ctx context.Context, userID UserID, amount int64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Message: fmt.Sprintf("must be positive, got %d", amount)}
	}
	if err := e.Store.UpsertAdd(ctx, userID, amount); err != nil {
		return &StoreError{Op: "add points", Err: err}
	}
	return nil
}
