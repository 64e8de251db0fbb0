/*
server.go - chi router for the loan API

Routes are grouped under /api:
  /api/loans/*          Loans, schedules, charges, transactions
  /api/reprocess/runs   Reprocessing audit log
  /api/strategies       Strategy catalog
  /api/scenarios/*      Demo scenarios

Middleware runs in order: request logging, panic recovery (500), request
IDs, then CORS for browser dashboards. There is no authentication layer.

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

// DefaultAllowedOrigins is used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.CreateLoan)
			r.Get("/{id}", h.GetLoan)
			r.Get("/{id}/schedule", h.GetSchedule)
			r.Get("/{id}/charges", h.GetCharges)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Post("/{id}/transactions", h.PostTransaction)
			r.Post("/{id}/reprocess", h.ReprocessLoan)
			r.Get("/{id}/early-payments", h.GetEarlyPayments)
		})

		r.Get("/reprocess/runs", h.ListRuns)
		r.Get("/strategies", h.ListStrategies)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
