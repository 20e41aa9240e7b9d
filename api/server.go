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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/apartments/*      Apartment roster
  /api/tenants/*         Tenant roster and payment analysis
  /api/cost-items/*      Operating cost line items
  /api/meter-readings/*  Water meter readings (single + batch)
  /api/payments/*        Append-only payment ledger
  /api/charges/*         Expected monthly charges
  /api/settlements/*     Settlement runs
  /api/scenarios/*       Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Roster routes
		r.Route("/apartments", func(r chi.Router) {
			r.Get("/", h.ListApartments)
			r.Post("/", h.CreateApartment)
		})

		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.ListTenants)
			r.Post("/", h.CreateTenant)
			r.Get("/{id}", h.GetTenant)
			r.Get("/{id}/missed-payments", h.GetMissedPayments)
		})

		// Billing data routes
		r.Route("/cost-items", func(r chi.Router) {
			r.Get("/", h.ListCostItems)
			r.Post("/", h.CreateCostItem)
		})

		r.Route("/meter-readings", func(r chi.Router) {
			r.Post("/", h.CreateReading)
			r.Post("/batch", h.ImportReadings)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.AppendPayment)
		})

		r.Route("/charges", func(r chi.Router) {
			r.Get("/", h.ListCharges)
			r.Post("/", h.CreateCharge)
		})

		// Settlement routes
		r.Route("/settlements", func(r chi.Router) {
			r.Post("/run", h.RunSettlement)
			r.Get("/runs", h.ListRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Settlement Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Operating-Cost Settlement Engine API</h1>
<p>The API is running. Load a demo scenario to get started:</p>
<pre>curl -X POST localhost:8080/api/scenarios/load -d '{"scenario_id": "two-tenant-building"}'</pre>
<p>Then run a settlement:</p>
<pre>curl -X POST localhost:8080/api/settlements/run -d '{"year": 2023}'</pre>
</body>
</html>`))
	})

	return r
}
