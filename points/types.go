/*
Package points provides the loyalty points ledger engine.

PURPOSE:
  This package contains the core types and algorithms for maintaining a
  consistent, auditable point balance per user: accrual for registration
  and completed purchases, redemption against that balance, administrative
  overrides, and the derived "available points" computation.

KEY CONCEPTS IN THIS FILE (types.go):
  - LedgerRecord: the per-user aggregate {points, redeemed, mode, standing}
  - Config: explicit configuration value object (rate, bonus, category rules)
  - BalanceMode / Standing: small state enums replacing ad hoc boolean flags
  - Breakdown: the full balance decomposition for dashboard rendering

DESIGN PRINCIPLES:
  1. One record per user: duplicates are a store violation, healed by merge
  2. Precision: decimal.Decimal for money and rates, never float64
  3. Explicit config: every engine call receives a Config; nothing reads
     ambient settings
  4. Derived balance: available points are computed on read, never stored

SEE ALSO:
  - policy.go: Conversion policy (floor accrual, ceil redemption cost)
  - store.go: Persistence and collaborator interfaces
  - balance.go: Available-points resolution
*/
package points

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// UserID identifies a user in the external user directory.
type UserID string

// OrderID identifies an order in the external order source.
type OrderID string

// =============================================================================
// RECORD STATE - Explicit enums instead of boolean flags
// =============================================================================

// BalanceMode says how a record's point total is interpreted.
type BalanceMode string

const (
	// ModeComputed: points is the incrementally accumulated total from
	// accrual events; the resolver recomputes the balance live.
	ModeComputed BalanceMode = "computed"

	// ModePinned: points was set directly by an administrator and is the
	// authoritative total, frozen against recomputation.
	ModePinned BalanceMode = "pinned"
)

// Standing says whether the user may see or spend points at all.
type Standing string

const (
	StandingActive  Standing = "active"
	StandingRevoked Standing = "revoked"
)

// =============================================================================
// LEDGER RECORD - One per user
// =============================================================================

// LedgerRecord is the stored aggregate for one user.
//
// INVARIANT: at most one record per UserID. The store can temporarily hold
// duplicates (e.g. after a migration); MergeDuplicates heals them by summing
// points and redeemed points into the earliest-created row.
type LedgerRecord struct {
	UserID         UserID
	Points         int64
	RedeemedPoints int64
	Mode           BalanceMode
	Standing       Standing
	CreatedAt      time.Time
}

// ZeroRecord is what reads return for users with no stored row.
// Reads never create rows as a side effect.
func ZeroRecord(userID UserID) LedgerRecord {
	return LedgerRecord{
		UserID:   userID,
		Mode:     ModeComputed,
		Standing: StandingActive,
	}
}

func (r LedgerRecord) Pinned() bool  { return r.Mode == ModePinned }
func (r LedgerRecord) Revoked() bool { return r.Standing == StandingRevoked }

// =============================================================================
// CONFIGURATION - Explicit value object, read once per operation by the caller
// =============================================================================

// Config carries the program settings an engine call depends on.
// Callers perform a single authoritative read from the settings store and
// pass the result in; the engine never consults ambient state.
type Config struct {
	// ConversionRate is the monetary amount worth one point.
	// Clamped to MinConversionRate before any division.
	ConversionRate decimal.Decimal

	// RegistrationBonus is the one-time signup credit. Zero disables it.
	RegistrationBonus int64

	// PurchaseEnabled gates purchase-derived accrual and the computed
	// purchase-points component of the balance resolver.
	PurchaseEnabled bool

	// CategoryRestricted limits qualifying spend to orders containing at
	// least one product in AllowedCategories.
	CategoryRestricted bool
	AllowedCategories  []string
}

// Normalize clamps the config to safe values: rate >= MinConversionRate,
// bonus >= 0. The settings layer applies the same clamp independently on
// save, so a stored config is already normalized; this guards direct callers.
func (c Config) Normalize() Config {
	c.ConversionRate = ClampRate(c.ConversionRate)
	if c.RegistrationBonus < 0 {
		c.RegistrationBonus = 0
	}
	return c
}

// =============================================================================
// EXTERNAL RECORDS - Shapes provided by collaborators
// =============================================================================

// User is a directory entry.
type User struct {
	ID          UserID
	Email       string
	DisplayName string
}

// Order is a completed or processing order as seen by the order source.
type Order struct {
	ID     OrderID
	UserID UserID // empty for guest orders
	Total  decimal.Decimal

	// Awarded is the at-most-once accrual marker (_points_awarded).
	Awarded bool
}

// =============================================================================
// BREAKDOWN - Full balance decomposition for display
// =============================================================================

// Breakdown is the dashboard view of a user's balance.
type Breakdown struct {
	Available         int64
	Total             int64
	Redeemed          int64
	RegistrationBonus int64
	PurchasePoints    int64
	ManuallySet       bool
	ManualValue       int64
	Revoked           bool
}
