/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for storefront integrations

ROUTE GROUPS:
  /api/users/*      Member balances, redemption, quotes
  /api/events/*     Registration and order-completion triggers
  /api/orders/*     Order storage and completion
  /api/admin/*      Settings, overrides, bulk maintenance

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.
  Admin routes must sit behind a gateway in production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/points", h.GetPoints)
			r.Post("/{id}/points/add", h.AddPoints)
			r.Post("/{id}/points/redeem", h.RedeemPoints)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/redemption-quote", h.GetRedemptionQuote)
		})

		// Event triggers
		r.Route("/events", func(r chi.Router) {
			r.Post("/registration", h.RegistrationEvent)
			r.Post("/order-completed", h.OrderCompletedEvent)
		})

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Post("/{id}/complete", h.CompleteOrder)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.SaveSettings)
			r.Put("/users/{id}/points", h.SetPoints)
			r.Post("/users/{id}/revoke", h.RevokeUser)
			r.Post("/users/{id}/restore", h.RestoreUser)
			r.Post("/backfill", h.Backfill)
			r.Post("/registration-bonus", h.RegistrationBonusCatchUp)
			r.Post("/merge-duplicates", h.MergeDuplicates)
		})
	})

	return r
}
