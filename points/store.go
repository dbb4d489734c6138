/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the engine and everything that stores state:
  the ledger itself, plus the external collaborators the engine consumes
  (user directory, order source, per-user bonus marker).

ATOMICITY CONTRACT:
  Triggers may run in separate processes, so correctness under concurrency
  comes from the store's atomic primitives, not application locks:
  - UpsertAdd is a single insert-or-increment per user
  - Redeem guards the decrement on the sufficient-balance predicate in the
    same conditional update that applies it

IDEMPOTENCE MARKERS:
  "Has this event already been processed" is a capability the engine
  queries, not state it manages. The per-order accrual marker lives with
  the order source; the per-user registration-bonus marker lives with the
  user directory's metadata store.

IMPLEMENTATIONS:
  - store/sqlite: production store implementing every interface here
  - points/store: in-memory implementation for tests
*/
package points

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER STORE
// =============================================================================

// Store persists LedgerRecords, one per user.
type Store interface {
	// Get returns the record for a user, or ZeroRecord(userID) if none
	// exists. Reads never create rows.
	Get(ctx context.Context, userID UserID) (LedgerRecord, error)

	// UpsertAdd credits delta points: creates the record with points=delta
	// if absent, otherwise increments atomically. The insert-or-increment
	// must be a single atomic operation per user to avoid lost updates
	// under concurrent accrual triggers.
	UpsertAdd(ctx context.Context, userID UserID, delta int64) error

	// SetAbsolute pins the record: points = newPoints, mode = pinned.
	// Returns the previous point total so the caller can report a delta.
	// Returns ErrRecordNotFound if the user has no row; this path never
	// creates one.
	SetAbsolute(ctx context.Context, userID UserID, newPoints int64) (previous int64, err error)

	// SetStanding revokes or restores a user. Creates a zero record if
	// none exists so a revocation sticks for users never seen before.
	SetStanding(ctx context.Context, userID UserID, standing Standing) error

	// Redeem atomically moves n points from points to redeemed_points,
	// guarded on points >= n inside the same conditional update. Returns
	// false with no mutation when the balance is insufficient.
	Redeem(ctx context.Context, userID UserID, n int64) (bool, error)

	// RescaleAll multiplies every record's points by factor, flooring.
	// Applies uniformly, pinned records included. Returns the number of
	// records touched.
	RescaleAll(ctx context.Context, factor decimal.Decimal) (int64, error)

	// MergeDuplicates heals the one-record-per-user invariant: for every
	// user with more than one row it sums points and redeemed_points into
	// the earliest-created row and deletes the rest. Idempotent. Returns
	// the number of rows removed.
	MergeDuplicates(ctx context.Context) (int64, error)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// UserDirectory is the external source of user identities.
type UserDirectory interface {
	UserExists(ctx context.Context, userID UserID) (bool, error)
	ListUserIDs(ctx context.Context) ([]UserID, error)
	GetUser(ctx context.Context, userID UserID) (User, error)
}

// OrderSource is the external source of orders and the owner of the
// per-order accrual marker.
type OrderSource interface {
	// ListCompletedOrders returns every completed/processing order,
	// including its accrual marker state.
	ListCompletedOrders(ctx context.Context) ([]Order, error)

	// ListCompletedOrdersByUser returns a user's completed/processing
	// orders, for live qualifying-spend computation.
	ListCompletedOrdersByUser(ctx context.Context, userID UserID) ([]Order, error)

	// GetOrder loads one order. Returns ErrOrderNotFound when missing.
	GetOrder(ctx context.Context, orderID OrderID) (Order, error)

	// SetAccrualMarker flags an order as processed so it is never
	// re-awarded, regardless of how many times completion fires.
	SetAccrualMarker(ctx context.Context, orderID OrderID) error

	// OrderQualifies reports whether the order contains at least one
	// product in the allowed category set. Only consulted when category
	// restriction is enabled.
	OrderQualifies(ctx context.Context, orderID OrderID, categories []string) (bool, error)
}

// BonusMarkerStore owns the per-user "registration bonus awarded" marker,
// kept distinct from the ledger row's existence: a row may exist from
// purchase accrual before the bonus was ever granted.
type BonusMarkerStore interface {
	BonusAwarded(ctx context.Context, userID UserID) (bool, error)
	SetBonusAwarded(ctx context.Context, userID UserID) error
}
