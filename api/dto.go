/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the internal domain
  model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/warp/loyalty-engine/points"
	"github.com/warp/loyalty-engine/store/sqlite"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a directory entry in API responses.
type UserDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// CreateUserRequest is the request to create a user. Creation alone does
// not award the registration bonus; the registration event does.
type CreateUserRequest struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// =============================================================================
// POINTS
// =============================================================================

// RecordDTO is the raw stored aggregate for a user.
type RecordDTO struct {
	UserID         string `json:"user_id"`
	Points         int64  `json:"points"`
	RedeemedPoints int64  `json:"redeemed_points"`
	ManuallySet    bool   `json:"manually_set"`
	Revoked        bool   `json:"revoked"`
}

// BreakdownDTO is the full balance decomposition for dashboards.
type BreakdownDTO struct {
	UserID            string `json:"user_id"`
	Available         int64  `json:"available"`
	Total             int64  `json:"total"`
	Redeemed          int64  `json:"redeemed"`
	RegistrationBonus int64  `json:"registration_bonus"`
	PurchasePoints    int64  `json:"purchase_points"`
	ManuallySet       bool   `json:"manually_set"`
	ManualValue       int64  `json:"manual_value"`
	Revoked           bool   `json:"revoked"`
}

// AddPointsRequest is a direct credit (guest-migration path).
type AddPointsRequest struct {
	Amount int64 `json:"amount"`
}

// RedeemRequest asks to spend points.
type RedeemRequest struct {
	Points int64 `json:"points"`
}

// RedeemResponse reports whether the redemption happened.
type RedeemResponse struct {
	Redeemed  bool  `json:"redeemed"`
	Points    int64 `json:"points"`
	Remaining int64 `json:"remaining"`
}

// SetPointsRequest pins a user's total to an exact value.
type SetPointsRequest struct {
	Points int64 `json:"points"`
}

// SetPointsResponse reports the override and its delta.
type SetPointsResponse struct {
	UserID   string `json:"user_id"`
	Points   int64  `json:"points"`
	Previous int64  `json:"previous"`
	Delta    int64  `json:"delta"`
}

// QuoteDTO is a redemption-cost quote for a monetary amount.
type QuoteDTO struct {
	Amount string `json:"amount"`
	Cost   int64  `json:"cost"`
}

// =============================================================================
// EVENTS
// =============================================================================

// RegistrationEventRequest mirrors the user-registration hook.
type RegistrationEventRequest struct {
	UserID string `json:"user_id"`
}

// OrderCompletedEventRequest mirrors the order-completion hook.
type OrderCompletedEventRequest struct {
	OrderID string `json:"order_id"`
}

// AwardResultDTO reports the outcome of an accrual trigger. Errors are
// reported, not thrown: a failed award never blocks the surrounding flow.
type AwardResultDTO struct {
	Awarded int64  `json:"awarded"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// ORDERS
// =============================================================================

// OrderDTO represents a stored order.
type OrderDTO struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id,omitempty"`
	Total       string   `json:"total"`
	Status      string   `json:"status"`
	CategoryIDs []string `json:"category_ids,omitempty"`
	Awarded     bool     `json:"points_awarded"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// CreateOrderRequest creates an order. Status defaults to "pending";
// completion (and accrual) happens via the complete endpoint.
type CreateOrderRequest struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Total       string   `json:"total"`
	Status      string   `json:"status"`
	CategoryIDs []string `json:"category_ids"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsDTO mirrors points.Config over the wire.
type SettingsDTO struct {
	ConversionRate     string   `json:"conversion_rate"`
	RegistrationBonus  int64    `json:"registration_bonus"`
	PurchaseEnabled    bool     `json:"purchase_enabled"`
	CategoryRestricted bool     `json:"category_restricted"`
	AllowedCategories  []string `json:"allowed_category_ids"`
}

// SaveSettingsResponse reports the side effects of a settings save.
type SaveSettingsResponse struct {
	Settings SettingsDTO `json:"settings"`
	Rescaled int64       `json:"rescaled"`
	Merged   int64       `json:"merged"`
}

// CountDTO is the result of a bulk maintenance operation.
type CountDTO struct {
	Count int64 `json:"count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRecordDTO(rec points.LedgerRecord) RecordDTO {
	return RecordDTO{
		UserID:         string(rec.UserID),
		Points:         rec.Points,
		RedeemedPoints: rec.RedeemedPoints,
		ManuallySet:    rec.Pinned(),
		Revoked:        rec.Revoked(),
	}
}

func toBreakdownDTO(userID points.UserID, b points.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		UserID:            string(userID),
		Available:         b.Available,
		Total:             b.Total,
		Redeemed:          b.Redeemed,
		RegistrationBonus: b.RegistrationBonus,
		PurchasePoints:    b.PurchasePoints,
		ManuallySet:       b.ManuallySet,
		ManualValue:       b.ManualValue,
		Revoked:           b.Revoked,
	}
}

func toOrderDTO(rec sqlite.OrderRecord) OrderDTO {
	return OrderDTO{
		ID:          string(rec.ID),
		UserID:      string(rec.UserID),
		Total:       rec.Total.String(),
		Status:      rec.Status,
		CategoryIDs: rec.CategoryIDs,
		Awarded:     rec.Awarded,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}
}

func toSettingsDTO(cfg points.Config) SettingsDTO {
	return SettingsDTO{
		ConversionRate:     cfg.ConversionRate.String(),
		RegistrationBonus:  cfg.RegistrationBonus,
		PurchaseEnabled:    cfg.PurchaseEnabled,
		CategoryRestricted: cfg.CategoryRestricted,
		AllowedCategories:  cfg.AllowedCategories,
	}
}
