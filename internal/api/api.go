// Package api sets up the HTTP routes and middleware for BudgetGuard's REST API.
package api

import (
	"net/http"

	"github.com/Manjussha/budgetguard/internal/api/handlers"
	"github.com/Manjussha/budgetguard/internal/limiter"
)

// Deps holds all dependencies injected into the API handlers.
type Deps = handlers.Deps

// SetupRoutes registers all HTTP routes on the given ServeMux.
// Uses Go 1.22 method+pattern routing syntax.
func SetupRoutes(mux *http.ServeMux, deps *Deps, rl *limiter.Limiter) {
	h := handlers.New(*deps)

	maxBody := deps.Config.MaxBodyBytes
	body := func(next http.HandlerFunc) http.Handler {
		return http.MaxBytesHandler(next, maxBody)
	}
	limited := func(next http.HandlerFunc) http.Handler {
		return rl.Middleware(body(next))
	}

	mux.HandleFunc("GET /health", h.Health)

	// Estimates
	mux.Handle("POST /api/v1/estimate", limited(h.CreateEstimate))
	mux.HandleFunc("GET /api/v1/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.GetSession)
	mux.Handle("POST /api/v1/import", limited(h.ImportWorkflow))

	// Analytics
	mux.Handle("POST /api/v1/events", body(h.TrackEvent))
	mux.HandleFunc("GET /api/v1/metrics", h.Metrics)

	// Checkout and export
	mux.Handle("POST /api/v1/checkout", body(h.CreateCheckout))
	mux.HandleFunc("GET /api/v1/checkout/{id}/pay", h.PayCheckout)
	mux.Handle("POST /api/v1/checkout/{id}/confirm", body(h.ConfirmCheckout))
	mux.HandleFunc("GET /api/v1/export/{sessionId}", h.ExportPack)

	// Webhooks
	mux.HandleFunc("GET /api/v1/webhooks", h.ListWebhooks)
	mux.Handle("POST /api/v1/webhooks", body(h.CreateWebhook))
	mux.HandleFunc("DELETE /api/v1/webhooks/{id}", h.DeleteWebhook)
	mux.HandleFunc("POST /api/v1/webhooks/{id}/test", h.TestWebhook)

	// Settings
	mux.HandleFunc("GET /api/v1/settings", h.ListSettings)
	mux.Handle("PUT /api/v1/settings/{key}", body(h.UpdateSetting))

	// Live feed
	mux.HandleFunc("GET /ws", deps.Hub.ServeWS)
}
