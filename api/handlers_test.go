/*
handlers_test.go - HTTP API tests

End-to-end flows over an in-memory database:
- registration -> order completion -> balance -> redemption
- admin overrides (set points, revoke/restore)
- settings save with rescale
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewRouter(NewHandler(store))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

// =============================================================================
// END-TO-END FLOW
// =============================================================================

func TestLifecycle_RegisterOrderRedeem(t *testing.T) {
	router := newTestRouter(t)

	// Configure: rate 10, bonus 10.
	rr := doJSON(t, router, http.MethodPut, "/api/admin/settings", SettingsDTO{
		ConversionRate:    "10",
		RegistrationBonus: 10,
		PurchaseEnabled:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Create a user and fire the registration trigger.
	rr = doJSON(t, router, http.MethodPost, "/api/users", CreateUserRequest{ID: "u1", Email: "u1@example.com"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/events/registration", RegistrationEventRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, rr.Code)
	award := decode[AwardResultDTO](t, rr)
	assert.Equal(t, int64(10), award.Awarded)
	assert.Empty(t, award.Error)

	// Create an order of 99 and complete it: floor(99/10) = 9 points.
	rr = doJSON(t, router, http.MethodPost, "/api/orders", CreateOrderRequest{ID: "o1", UserID: "u1", Total: "99"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/orders/o1/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	award = decode[AwardResultDTO](t, rr)
	assert.Equal(t, int64(9), award.Awarded)

	// Completing again is a no-op.
	rr = doJSON(t, router, http.MethodPost, "/api/orders/o1/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	award = decode[AwardResultDTO](t, rr)
	assert.Equal(t, int64(0), award.Awarded)

	// Raw record: 10 + 9 points.
	rr = doJSON(t, router, http.MethodGet, "/api/users/u1/points", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decode[RecordDTO](t, rr)
	assert.Equal(t, int64(19), rec.Points)

	// Resolved balance agrees: bonus 10 + purchase 9 - redeemed 0.
	rr = doJSON(t, router, http.MethodGet, "/api/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	bal := decode[BreakdownDTO](t, rr)
	assert.Equal(t, int64(19), bal.Available)
	assert.Equal(t, int64(10), bal.RegistrationBonus)
	assert.Equal(t, int64(9), bal.PurchasePoints)

	// A 99 redemption quote ceils to 10 points.
	rr = doJSON(t, router, http.MethodGet, "/api/users/u1/redemption-quote?amount=99", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	quote := decode[QuoteDTO](t, rr)
	assert.Equal(t, int64(10), quote.Cost)

	// Redeeming more than held is refused, not an error.
	rr = doJSON(t, router, http.MethodPost, "/api/users/u1/points/redeem", RedeemRequest{Points: 20})
	require.Equal(t, http.StatusOK, rr.Code)
	red := decode[RedeemResponse](t, rr)
	assert.False(t, red.Redeemed)
	assert.Equal(t, int64(19), red.Remaining)

	// Redeeming the exact balance succeeds.
	rr = doJSON(t, router, http.MethodPost, "/api/users/u1/points/redeem", RedeemRequest{Points: 19})
	require.Equal(t, http.StatusOK, rr.Code)
	red = decode[RedeemResponse](t, rr)
	assert.True(t, red.Redeemed)
	assert.Equal(t, int64(0), red.Remaining)
}

// =============================================================================
// EVENT EDGE CASES
// =============================================================================

func TestOrderCompletedEvent_UnknownOrder(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/events/order-completed", OrderCompletedEventRequest{OrderID: "missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRegistrationEvent_MissingUserID(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/events/registration", RegistrationEventRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegistrationEvent_UnknownUser(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/events/registration", RegistrationEventRequest{UserID: "ghost"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetUser(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/users", CreateUserRequest{ID: "u1", Email: "u1@example.com"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/users/u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	u := decode[UserDTO](t, rr)
	assert.Equal(t, "u1@example.com", u.Email)

	rr = doJSON(t, router, http.MethodGet, "/api/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAddPoints_RejectsNonPositive(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/users/u1/points/add", AddPointsRequest{Amount: -5})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// ADMIN OVERRIDES
// =============================================================================

func TestSetPoints_UnknownUserIs404(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPut, "/api/admin/users/ghost/points", SetPointsRequest{Points: 100})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetPoints_PinsBalance(t *testing.T) {
	// GIVEN: A user holding 40 credited points
	// WHEN: An admin sets the total to 500
	// THEN: The response reports the delta and the balance reads 500

	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/users/u1/points/add", AddPointsRequest{Amount: 40})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/api/admin/users/u1/points", SetPointsRequest{Points: 500})
	require.Equal(t, http.StatusOK, rr.Code)
	set := decode[SetPointsResponse](t, rr)
	assert.Equal(t, int64(40), set.Previous)
	assert.Equal(t, int64(460), set.Delta)

	rr = doJSON(t, router, http.MethodGet, "/api/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	bal := decode[BreakdownDTO](t, rr)
	assert.True(t, bal.ManuallySet)
	assert.Equal(t, int64(500), bal.Available)
}

func TestRevokeAndRestore(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/users/u1/points/add", AddPointsRequest{Amount: 100})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/admin/users/u1/revoke", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	bal := decode[BreakdownDTO](t, rr)
	assert.True(t, bal.Revoked)
	assert.Equal(t, int64(0), bal.Available)

	// Redemption is refused while revoked.
	rr = doJSON(t, router, http.MethodPost, "/api/users/u1/points/redeem", RedeemRequest{Points: 10})
	require.Equal(t, http.StatusOK, rr.Code)
	red := decode[RedeemResponse](t, rr)
	assert.False(t, red.Redeemed)

	rr = doJSON(t, router, http.MethodPost, "/api/admin/users/u1/restore", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	bal = decode[BreakdownDTO](t, rr)
	assert.False(t, bal.Revoked)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSaveSettings_RateChangeRescales(t *testing.T) {
	// GIVEN: A user holding 100 points at rate 1
	// WHEN: Saving settings with rate 2
	// THEN: The stored total halves and the response reports one rescaled row

	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPut, "/api/admin/settings", SettingsDTO{
		ConversionRate: "1", RegistrationBonus: 10, PurchaseEnabled: true,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/users/u1/points/add", AddPointsRequest{Amount: 100})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/api/admin/settings", SettingsDTO{
		ConversionRate: "2", RegistrationBonus: 10, PurchaseEnabled: true,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	saved := decode[SaveSettingsResponse](t, rr)
	assert.Equal(t, int64(1), saved.Rescaled)
	assert.Equal(t, "2", saved.Settings.ConversionRate)

	rr = doJSON(t, router, http.MethodGet, "/api/users/u1/points", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decode[RecordDTO](t, rr)
	assert.Equal(t, int64(50), rec.Points)
}

func TestSaveSettings_InvalidRateRejected(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPut, "/api/admin/settings", SettingsDTO{ConversionRate: "abc"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// BULK MAINTENANCE
// =============================================================================

func TestBackfillEndpoint_CreditsUnmarkedOrders(t *testing.T) {
	router := newTestRouter(t)

	for i := 1; i <= 3; i++ {
		rr := doJSON(t, router, http.MethodPost, "/api/orders", CreateOrderRequest{
			ID: fmt.Sprintf("o%d", i), UserID: "u1", Total: "100", Status: "completed",
		})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := doJSON(t, router, http.MethodPost, "/api/admin/backfill", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	count := decode[CountDTO](t, rr)
	assert.Equal(t, int64(3), count.Count)

	// Second run finds everything marked.
	rr = doJSON(t, router, http.MethodPost, "/api/admin/backfill", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	count = decode[CountDTO](t, rr)
	assert.Equal(t, int64(0), count.Count)
}

func TestRegistrationBonusEndpoint_CatchUp(t *testing.T) {
	router := newTestRouter(t)

	for _, id := range []string{"u1", "u2"} {
		rr := doJSON(t, router, http.MethodPost, "/api/users", CreateUserRequest{ID: id})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := doJSON(t, router, http.MethodPost, "/api/admin/registration-bonus", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	count := decode[CountDTO](t, rr)
	assert.Equal(t, int64(2), count.Count)

	rr = doJSON(t, router, http.MethodPost, "/api/admin/registration-bonus", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	count = decode[CountDTO](t, rr)
	assert.Equal(t, int64(0), count.Count)
}
