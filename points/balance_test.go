package points_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// BALANCE RESOLVER TESTS
// =============================================================================

func TestBalance_UnknownUserResolvesToZero(t *testing.T) {
	// GIVEN: A user with no ledger row
	// WHEN: Resolving the balance
	// THEN: Zero-value breakdown plus the configured bonus component, no error

	engine, _ := newTestEngine()

	cfg := testConfig()
	cfg.RegistrationBonus = 0

	available, err := engine.AvailablePoints(context.Background(), "ghost", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(0), available)
}

func TestBalance_ComputedModeRecomputesFromOrders(t *testing.T) {
	// GIVEN: A computed-mode user with 300 of completed spend at rate 1,
	//        bonus 10, and 20 points already redeemed
	// WHEN: Resolving the balance
	// THEN: available = 10 + 300 - 20, regardless of the stored total

	engine, m := newTestEngine()
	ctx := context.Background()

	m.AddOrder(order("o1", "u1", "100"), "completed")
	m.AddOrder(order("o2", "u1", "200"), "processing")
	m.AddOrder(order("o3", "u1", "999"), "pending") // not countable
	m.AddOrder(order("o4", "other", "50"), "completed")

	require.NoError(t, engine.AddPoints(ctx, "u1", 40))
	ok, err := engine.Redeem(ctx, "u1", 20)
	require.NoError(t, err)
	require.True(t, ok)

	b, err := engine.Breakdown(ctx, "u1", testConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.RegistrationBonus)
	assert.Equal(t, int64(300), b.PurchasePoints)
	assert.Equal(t, int64(20), b.Redeemed)
	assert.Equal(t, int64(290), b.Available)
	assert.False(t, b.ManuallySet)
}

func TestBalance_ComputedModeTracksCurrentRate(t *testing.T) {
	// GIVEN: 100 of completed spend
	// WHEN: Resolving at rate 1 and then at rate 10
	// THEN: The purchase component follows the current rate

	engine, m := newTestEngine()
	ctx := context.Background()
	m.AddOrder(order("o1", "u1", "100"), "completed")

	cfg := testConfig()
	cfg.RegistrationBonus = 0

	available, err := engine.AvailablePoints(ctx, "u1", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(100), available)

	cfg.ConversionRate = decimal.NewFromInt(10)
	available, err = engine.AvailablePoints(ctx, "u1", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(10), available)
}

func TestBalance_PinnedModeIgnoresOrders(t *testing.T) {
	// GIVEN: A user pinned to 500 points, with order history and redemptions
	// WHEN: Resolving the balance
	// THEN: available = 500 - redeemed; order history is ignored

	engine, m := newTestEngine()
	ctx := context.Background()
	m.AddOrder(order("o1", "u1", "1000"), "completed")

	require.NoError(t, engine.AddPoints(ctx, "u1", 40))
	_, err := engine.SetAbsolutePoints(ctx, "u1", 500)
	require.NoError(t, err)

	ok, err := engine.Redeem(ctx, "u1", 100)
	require.NoError(t, err)
	require.True(t, ok)

	b, err := engine.Breakdown(ctx, "u1", testConfig())
	require.NoError(t, err)
	assert.True(t, b.ManuallySet)
	assert.Equal(t, int64(400), b.ManualValue)
	assert.Equal(t, int64(400), b.Available)
	assert.Equal(t, int64(0), b.PurchasePoints)
}

func TestBalance_RevokedUserSeesZero(t *testing.T) {
	// GIVEN: A revoked user with points and order history
	// WHEN: Resolving the balance
	// THEN: available = 0 whatever the record holds

	engine, m := newTestEngine()
	ctx := context.Background()
	m.AddOrder(order("o1", "u1", "100"), "completed")
	require.NoError(t, engine.AddPoints(ctx, "u1", 40))
	require.NoError(t, engine.Revoke(ctx, "u1"))

	b, err := engine.Breakdown(ctx, "u1", testConfig())
	require.NoError(t, err)
	assert.True(t, b.Revoked)
	assert.Equal(t, int64(0), b.Available)

	revoked, err := engine.IsRevoked(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Restore brings the computed balance back.
	require.NoError(t, engine.Restore(ctx, "u1"))
	b, err = engine.Breakdown(ctx, "u1", testConfig())
	require.NoError(t, err)
	assert.False(t, b.Revoked)
	assert.Equal(t, int64(110), b.Available)
}

func TestBalance_PurchaseDisabledDropsComponent(t *testing.T) {
	// GIVEN: Completed spend but purchase accrual disabled
	// WHEN: Resolving the balance
	// THEN: The purchase component is zero; the bonus still counts

	engine, m := newTestEngine()
	ctx := context.Background()
	m.AddOrder(order("o1", "u1", "100"), "completed")

	cfg := testConfig()
	cfg.PurchaseEnabled = false

	b, err := engine.Breakdown(ctx, "u1", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.PurchasePoints)
	assert.Equal(t, int64(10), b.Available)
}

func TestBalance_CategoryRestrictionFiltersOrders(t *testing.T) {
	// GIVEN: Two completed orders, only one containing an allowed category
	// WHEN: Resolving with category restriction on
	// THEN: Only the qualifying order's total counts

	engine, m := newTestEngine()
	ctx := context.Background()
	m.AddOrder(order("o1", "u1", "100"), "completed", "books")
	m.AddOrder(order("o2", "u1", "200"), "completed", "electronics")

	cfg := testConfig()
	cfg.RegistrationBonus = 0
	cfg.CategoryRestricted = true
	cfg.AllowedCategories = []string{"books"}

	available, err := engine.AvailablePoints(ctx, "u1", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(100), available)
}

func TestBalance_CanGoNegative(t *testing.T) {
	// GIVEN: Redemptions recorded against a stored total that later shrank
	//        (rate went up, so the computed component is now small)
	// WHEN: Resolving the balance
	// THEN: The negative number is reported, not clamped

	engine, m := newTestEngine()
	ctx := context.Background()
	m.AddOrder(order("o1", "u1", "100"), "completed")

	require.NoError(t, engine.AddPoints(ctx, "u1", 100))
	ok, err := engine.Redeem(ctx, "u1", 100)
	require.NoError(t, err)
	require.True(t, ok)

	cfg := testConfig()
	cfg.RegistrationBonus = 0
	cfg.ConversionRate = decimal.NewFromInt(10)

	available, err := engine.AvailablePoints(ctx, "u1", cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(-90), available)
}
