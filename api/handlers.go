/*
handlers.go - HTTP API handlers for the loyalty points ledger

PURPOSE:
  Exposes the points engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the engine.

REQUEST FLOW:
  1. Parse HTTP request
  2. Read the program settings ONCE into a Config value object
  3. Call engine operation with that Config
  4. Serialize response

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: User/order/ledger row not found
  - 500: Store failures
  Balance reads never 500 on a missing record - absence is a zero balance.
  Event-trigger endpoints report award failures in the body instead of
  failing the request, mirroring hooks that must not block registration
  or order completion.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/points"
	"github.com/warp/loyalty-engine/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *points.Engine
}

// NewHandler creates a handler over the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:  store,
		Engine: points.NewEngine(store, store, store, store),
	}
}

// config performs the single authoritative settings read for a request.
func (h *Handler) config(r *http.Request) (points.Config, error) {
	return h.Store.LoadConfig(r.Context())
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all directory entries.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = UserDTO{ID: string(u.ID), Email: u.Email, DisplayName: u.DisplayName}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser creates a directory entry without awarding anything.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	u := points.User{ID: points.UserID(req.ID), Email: req.Email, DisplayName: req.DisplayName}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, UserDTO{ID: req.ID, Email: req.Email, DisplayName: req.DisplayName})
}

// GetUser returns one directory entry.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	u, err := h.Store.GetUser(r.Context(), userID)
	if err != nil {
		if points.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read user", err)
		return
	}
	writeJSON(w, http.StatusOK, UserDTO{ID: string(u.ID), Email: u.Email, DisplayName: u.DisplayName})
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetPoints returns the raw stored record. Absence yields zeros, not 404.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	rec, err := h.Engine.GetRecord(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read points", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// GetBalance returns the full balance breakdown.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	b, err := h.Engine.Breakdown(r.Context(), userID, cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(userID, b))
}

// GetRedemptionQuote quotes the ceil point cost of a monetary amount.
func (h *Handler) GetRedemptionQuote(w http.ResponseWriter, r *http.Request) {
	amountStr := r.URL.Query().Get("amount")
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	writeJSON(w, http.StatusOK, QuoteDTO{
		Amount: amount.String(),
		Cost:   h.Engine.RedemptionCostFor(amount, cfg),
	})
}

// AddPoints credits points directly (guest-to-member migration path).
func (h *Handler) AddPoints(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	var req AddPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.AddPoints(r.Context(), userID, req.Amount); err != nil {
		status := http.StatusInternalServerError
		if points.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Failed to add points", err)
		return
	}

	rec, err := h.Engine.GetRecord(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read points", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// RedeemPoints attempts a redemption. Insufficient balance is a normal
// 200 with redeemed=false, not an error.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ok, err := h.Engine.Redeem(r.Context(), userID, req.Points)
	if err != nil {
		status := http.StatusInternalServerError
		if points.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Failed to redeem points", err)
		return
	}

	rec, err := h.Engine.GetRecord(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read points", err)
		return
	}
	writeJSON(w, http.StatusOK, RedeemResponse{
		Redeemed:  ok,
		Points:    req.Points,
		Remaining: rec.Points,
	})
}

// =============================================================================
// EVENT TRIGGERS - mirror the registration and order-completion hooks.
// Award failures are reported, never thrown: these must not block the
// surrounding signup/checkout flow.
// =============================================================================

// RegistrationEvent fires the signup trigger: awards the bonus.
func (h *Handler) RegistrationEvent(w http.ResponseWriter, r *http.Request) {
	var req RegistrationEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", err)
		return
	}

	exists, err := h.Store.UserExists(r.Context(), points.UserID(req.UserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read user", err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	result := AwardResultDTO{}
	awarded, err := h.Engine.AwardRegistrationBonus(r.Context(), points.UserID(req.UserID), cfg)
	result.Awarded = awarded
	if err != nil {
		result.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, result)
}

// OrderCompletedEvent fires the order-completion trigger: awards purchase
// points at most once per order.
func (h *Handler) OrderCompletedEvent(w http.ResponseWriter, r *http.Request) {
	var req OrderCompletedEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required", err)
		return
	}

	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	result := AwardResultDTO{}
	awarded, err := h.Engine.AwardPurchasePoints(r.Context(), points.OrderID(req.OrderID), cfg)
	result.Awarded = awarded
	if err != nil {
		if points.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Order not found", err)
			return
		}
		result.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// ListOrders returns all stored orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListOrderRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toOrderDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOrder stores an order. No accrual happens until completion.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total", err)
		return
	}
	status := req.Status
	if status == "" {
		status = "pending"
	}

	rec := sqlite.OrderRecord{
		ID:          points.OrderID(req.ID),
		UserID:      points.UserID(req.UserID),
		Total:       total,
		Status:      status,
		CategoryIDs: req.CategoryIDs,
	}
	if err := h.Store.SaveOrder(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create order", err)
		return
	}

	stored, err := h.Store.GetOrderRecord(r.Context(), rec.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(stored))
}

// CompleteOrder marks an order completed and fires the accrual trigger.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := points.OrderID(chi.URLParam(r, "id"))

	if err := h.Store.SetOrderStatus(r.Context(), orderID, "completed"); err != nil {
		if points.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Order not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to complete order", err)
		return
	}

	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	result := AwardResultDTO{}
	awarded, err := h.Engine.AwardPurchasePoints(r.Context(), orderID, cfg)
	result.Awarded = awarded
	if err != nil {
		result.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SetPoints pins a user's total to an exact value. 404 when the user has
// no ledger row - this path never creates one.
func (h *Handler) SetPoints(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	var req SetPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	prev, err := h.Engine.SetAbsolutePoints(r.Context(), userID, req.Points)
	if err != nil {
		switch {
		case points.IsNotFound(err):
			writeError(w, http.StatusNotFound, "No ledger record for user", err)
		case points.IsClientError(err):
			writeError(w, http.StatusBadRequest, "Invalid points value", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to set points", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, SetPointsResponse{
		UserID:   string(userID),
		Points:   req.Points,
		Previous: prev,
		Delta:    req.Points - prev,
	})
}

// RevokeUser denies all point access for a user.
func (h *Handler) RevokeUser(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	if err := h.Engine.Revoke(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to revoke user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": string(userID), "revoked": true})
}

// RestoreUser lifts a revocation.
func (h *Handler) RestoreUser(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	if err := h.Engine.Restore(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to restore user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": string(userID), "revoked": false})
}

// Backfill awards missed historical orders.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	credited, err := h.Engine.BackfillOrders(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Backfill failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CountDTO{Count: int64(credited)})
}

// RegistrationBonusCatchUp awards the bonus to users who never got it.
func (h *Handler) RegistrationBonusCatchUp(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	credited, err := h.Engine.AwardExistingUsersBonus(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Bonus catch-up failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CountDTO{Count: int64(credited)})
}

// MergeDuplicates heals duplicate ledger rows.
func (h *Handler) MergeDuplicates(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Engine.MergeDuplicates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Merge failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CountDTO{Count: removed})
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the current program settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(cfg))
}

// SaveSettings persists new settings. A conversion-rate change rescales
// every ledger record; every save runs the duplicate merge.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := decimal.NewFromString(req.ConversionRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid conversion_rate", err)
		return
	}

	ctx := r.Context()
	oldCfg, err := h.Store.LoadConfig(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}

	newCfg := points.Config{
		ConversionRate:     rate,
		RegistrationBonus:  req.RegistrationBonus,
		PurchaseEnabled:    req.PurchaseEnabled,
		CategoryRestricted: req.CategoryRestricted,
		AllowedCategories:  req.AllowedCategories,
	}.Normalize()

	if err := h.Store.SaveConfig(ctx, newCfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}

	// Rescale handles the merge itself; for a rate-preserving save the
	// merge still runs (category/bonus/enablement changes trigger it too).
	rescaled, merged, err := h.Engine.RescaleOnRateChange(ctx, oldCfg.ConversionRate, newCfg.ConversionRate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Settings saved but rescale failed", err)
		return
	}

	writeJSON(w, http.StatusOK, SaveSettingsResponse{
		Settings: toSettingsDTO(newCfg),
		Rescaled: rescaled,
		Merged:   merged,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
