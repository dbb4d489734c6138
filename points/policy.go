/*
policy.go - Conversion policy: money <-> points

PURPOSE:
  Pure functions mapping monetary amounts to point quantities using a
  configurable rate, and computing rescale factors when the rate changes.

GUARANTEES:
  - Monotonic in amount for a fixed rate
  - Never negative
  - Always an integer: accrual floors, redemption cost ceils

THE FLOOR/CEIL ASYMMETRY:
  Accrual uses floor (amount 99 at rate 10 credits 9 points) while the
  redemption cost for the same amount uses ceil (10 points). This biases
  accrual downward and redemption cost upward. It is intentional; keep it.

ZERO-RATE GUARD:
  The rate is clamped to MinConversionRate (0.01) before any division.
  The settings layer applies the same clamp on save, so both ends agree.
*/
package points

import "github.com/shopspring/decimal"

// MinConversionRate is the smallest usable conversion rate.
var MinConversionRate = decimal.RequireFromString("0.01")

// ClampRate forces a rate to at least MinConversionRate.
// Zero and negative rates come from misconfigured settings; clamping keeps
// every division defined rather than rejecting the config outright.
func ClampRate(rate decimal.Decimal) decimal.Decimal {
	if rate.LessThan(MinConversionRate) {
		return MinConversionRate
	}
	return rate
}

// PointsForAmount converts a monetary amount to accrued points:
// floor(amount / clamp(rate)). Non-positive amounts yield zero.
func PointsForAmount(amount, rate decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(ClampRate(rate)).Floor().IntPart()
}

// RedemptionCost converts a monetary amount to the points needed to cover
// it: ceil(amount / clamp(rate)). Non-positive amounts cost zero.
func RedemptionCost(amount, rate decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(ClampRate(rate)).Ceil().IntPart()
}

// RescaleFactor is the multiplier applied to every stored point total when
// the conversion rate changes: clamp(oldRate) / clamp(newRate).
func RescaleFactor(oldRate, newRate decimal.Decimal) decimal.Decimal {
	return ClampRate(oldRate).Div(ClampRate(newRate))
}

// RescalePoints applies a rescale factor to a point total, flooring the
// result. Totals are non-negative, so floor and truncation agree.
func RescalePoints(pts int64, factor decimal.Decimal) int64 {
	return decimal.NewFromInt(pts).Mul(factor).Floor().IntPart()
}
