/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: Structured request logging (logrus)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the field app
  5. Session:       Resolves the caller's Actor from session headers

ROUTE GROUPS:
  /api/employees/{id}/entries     Time entry ledger
  /api/employees/{id}/weeks/*     Week summaries and submit
  /api/employees/{id}/callouts    Same-day call-outs
  /api/employees/{id}/leave       Leave requests
  /api/leave/{id}/*               Manager decisions
  /api/jobs/{id}/*                Material reconcile
  /api/notifications              Manager outbox
  /api/scenarios/*                Demo data

SECURITY NOTE:
  Authentication happens upstream. The API trusts the session headers.
  Employee-scoped routes (/api/employees/{id}/...) require an employee or
  manager session; a request without one is refused with 401.
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
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderEmployeeID, HeaderVanID, HeaderRole},
		AllowCredentials: true,
	}))
	r.Use(Session)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/employees/{id}", func(r chi.Router) {
			r.Get("/entries", h.ListEntries)
			r.Put("/entries", h.UpsertEntry)
			r.Get("/weeks/{date}", h.GetWeek)
			r.Post("/weeks/{weekEnding}/submit", h.SubmitWeek)
			r.Post("/callouts", h.CallOut)
			r.Get("/leave", h.ListLeave)
			r.Post("/leave", h.RequestLeave)
		})

		r.Route("/leave/{id}", func(r chi.Router) {
			r.Post("/approve", h.ApproveLeave)
			r.Post("/deny", h.DenyLeave)
		})

		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/materials", h.GetJobMaterials)
			r.Post("/reconcile", h.ReconcileMaterials)
		})

		r.Get("/notifications", h.ListNotifications)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
