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
  4. CORS:       Cross-origin requests for the mobile/web clients

ROUTE GROUPS:
  /api/matches/*        Match lifecycle
  /api/reservations/*   Full-field reservation lifecycle
  /api/players/*        Wallets and bookings per player
  /api/fields/*         Catalog, availability, reservations per field

SECURITY NOTE:
  No authentication middleware here. An API gateway terminates auth in
  front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Match routes
		r.Route("/matches", func(r chi.Router) {
			r.Get("/", h.ListOpenMatches)
			r.Post("/", h.CreateMatch)
			r.Get("/{id}", h.GetMatch)
			r.Post("/{id}/join", h.JoinMatch)
			r.Post("/{id}/leave", h.LeaveMatch)
			r.Post("/{id}/cancel", h.CancelMatch)
			r.Post("/{id}/start", h.StartMatch)
			r.Post("/{id}/finish", h.FinishMatch)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/confirm", h.ConfirmReservation)
			r.Post("/{id}/finish", h.FinishReservation)
		})

		// Player routes
		r.Route("/players", func(r chi.Router) {
			r.Get("/{id}/wallet", h.GetWallet)
			r.Get("/{id}/wallet/entries", h.GetWalletEntries)
			r.Post("/{id}/wallet/topup", h.TopUpWallet)
			r.Get("/{id}/bookings", h.GetPlayerBookings)
		})

		// Field routes
		r.Route("/fields", func(r chi.Router) {
			r.Get("/", h.ListFields)
			r.Get("/{id}", h.GetField)
			r.Get("/{id}/availability", h.GetFieldAvailability)
			r.Get("/{id}/reservations", h.GetFieldReservations)
		})
	})

	return r
}
