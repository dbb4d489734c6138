package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-package tests: corruption can only be planted by writing rows the
// public API would never produce.

func newRawStore(t *testing.T) *Store {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func plantSetting(t *testing.T, store *Store, key, value string) {
	t.Helper()
	_, err := store.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)`, key, value)
	require.NoError(t, err)
}

func TestLoadConfig_CorruptValuesSurface(t *testing.T) {
	// GIVEN: A settings row whose value no save path could have written
	// WHEN: Loading the config
	// THEN: The corruption surfaces as an error naming the key, instead of
	//       silently degrading to the default

	cases := []struct {
		key   string
		value string
	}{
		{settingConversionRate, "banana"},
		{settingRegistrationBonus, "ten"},
		{settingPurchaseEnabled, "yes"},
		{settingCategoryRestricted, "2"},
		{settingAllowedCategories, `{"not":`},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			store := newRawStore(t)
			plantSetting(t, store, tc.key, tc.value)

			_, err := store.LoadConfig(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestOrders_CorruptCategoryListSurfaces(t *testing.T) {
	// GIVEN: An order row carrying a category blob that is not valid JSON
	// WHEN: Reading the order or checking its category qualification
	// THEN: Both paths report the corruption

	store := newRawStore(t)
	ctx := context.Background()

	_, err := store.db.Exec(`
		INSERT INTO orders (id, user_id, total, status, category_ids, points_awarded, created_at)
		VALUES ('o1', 'u1', '10', 'completed', '{broken', 0, '2026-01-01T00:00:00Z')
	`)
	require.NoError(t, err)

	_, err = store.GetOrderRecord(ctx, "o1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "o1")

	_, err = store.ListOrderRecords(ctx)
	require.Error(t, err)

	_, err = store.OrderQualifies(ctx, "o1", []string{"books"})
	require.Error(t, err)
}
