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
  4. CORS:       Cross-origin requests for back-office frontends

ROUTE GROUPS:
  /api/vouchers/*          Posting, amendment and lifecycle
  /api/aggregates/*        Monthly rollup reads
  /api/chart-of-accounts   Hierarchical balances
  /api/audits/*            Balance and completeness audit runs
  /api/accounts            Chart configuration
  /api/source-records      Business record registration

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
		// Voucher routes
		r.Route("/vouchers", func(r chi.Router) {
			r.Get("/", h.ListVouchers)
			r.Post("/", h.PostVoucher)
			r.Get("/{id}", h.GetVoucher)
			r.Post("/{id}/amend", h.AmendVoucher)
			r.Delete("/{id}", h.DeleteVoucher)
			r.Post("/{id}/restore", h.RestoreVoucher)
			r.Delete("/{id}/purge", h.PurgeVoucher)
			r.Get("/{id}/audit", h.GetVoucherAudit)
		})

		// Aggregate routes
		r.Get("/aggregates/{companyID}/{monthID}", h.GetAggregate)

		// Chart routes
		r.Get("/chart-of-accounts", h.GetChartOfAccounts)

		// Audit routes
		r.Route("/audits", func(r chi.Router) {
			r.Post("/balance", h.RunBalanceAudit)
			r.Post("/completeness", h.RunCompletenessAudit)
		})

		// Configuration routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
		})
		r.Post("/source-records", h.CreateSourceRecord)
	})

	// Liveness probe
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
