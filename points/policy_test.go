package points_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/loyalty-engine/points"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// CONVERSION POLICY TESTS
// =============================================================================

func TestPointsForAmount_FloorsPartialPoints(t *testing.T) {
	// GIVEN: Rate 10 (10 currency units per point)
	// WHEN: Converting an amount of 99
	// THEN: Accrual floors to 9 points, never rounds up

	assert.Equal(t, int64(9), points.PointsForAmount(dec("99"), dec("10")))
	assert.Equal(t, int64(10), points.PointsForAmount(dec("100"), dec("10")))
	assert.Equal(t, int64(10), points.PointsForAmount(dec("109.99"), dec("10")))
}

func TestRedemptionCost_CeilsPartialPoints(t *testing.T) {
	// GIVEN: Rate 10
	// WHEN: Quoting the cost of covering an amount of 99
	// THEN: Cost rounds up to 10 points, asymmetric with accrual's floor

	assert.Equal(t, int64(10), points.RedemptionCost(dec("99"), dec("10")))
	assert.Equal(t, int64(10), points.RedemptionCost(dec("100"), dec("10")))
	assert.Equal(t, int64(11), points.RedemptionCost(dec("100.01"), dec("10")))
}

func TestConversion_NonPositiveAmounts(t *testing.T) {
	assert.Equal(t, int64(0), points.PointsForAmount(dec("0"), dec("10")))
	assert.Equal(t, int64(0), points.PointsForAmount(dec("-5"), dec("10")))
	assert.Equal(t, int64(0), points.RedemptionCost(dec("0"), dec("10")))
	assert.Equal(t, int64(0), points.RedemptionCost(dec("-5"), dec("10")))
}

func TestClampRate_ZeroAndNegativeRates(t *testing.T) {
	// GIVEN: A misconfigured zero or negative conversion rate
	// WHEN: Converting through the policy
	// THEN: The rate clamps to 0.01 and division stays defined

	assert.True(t, points.ClampRate(decimal.Zero).Equal(dec("0.01")))
	assert.True(t, points.ClampRate(dec("-3")).Equal(dec("0.01")))
	assert.True(t, points.ClampRate(dec("0.005")).Equal(dec("0.01")))
	assert.True(t, points.ClampRate(dec("2")).Equal(dec("2")))

	// 1 currency unit at the clamped floor is worth 100 points.
	assert.Equal(t, int64(100), points.PointsForAmount(dec("1"), decimal.Zero))
}

func TestRescaleFactor_RatioOfClampedRates(t *testing.T) {
	// GIVEN: Rate changes 1 -> 2
	// WHEN: Computing the rescale factor
	// THEN: Factor is old/new = 0.5; zero rates clamp before dividing

	assert.True(t, points.RescaleFactor(dec("1"), dec("2")).Equal(dec("0.5")))
	assert.True(t, points.RescaleFactor(dec("2"), dec("1")).Equal(dec("2")))
	assert.True(t, points.RescaleFactor(decimal.Zero, dec("0.01")).Equal(dec("1")))
}

func TestRescalePoints_FloorsResult(t *testing.T) {
	assert.Equal(t, int64(50), points.RescalePoints(100, dec("0.5")))
	assert.Equal(t, int64(33), points.RescalePoints(100, dec("0.335")))
	assert.Equal(t, int64(0), points.RescalePoints(1, dec("0.5")))
}

func TestConfigNormalize_ClampsRateAndBonus(t *testing.T) {
	cfg := points.Config{ConversionRate: decimal.Zero, RegistrationBonus: -5}.Normalize()
	assert.True(t, cfg.ConversionRate.Equal(dec("0.01")))
	assert.Equal(t, int64(0), cfg.RegistrationBonus)
}
