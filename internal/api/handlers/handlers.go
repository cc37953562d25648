// Package handlers provides HTTP handler implementations for the BudgetGuard REST API.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/billing"
	"github.com/Manjussha/budgetguard/internal/config"
	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/importer"
	"github.com/Manjussha/budgetguard/internal/notify"
	"github.com/Manjussha/budgetguard/internal/scheduler"
	"github.com/Manjussha/budgetguard/internal/sessions"
	"github.com/Manjussha/budgetguard/internal/webhook"
	"github.com/Manjussha/budgetguard/internal/ws"
)

// Deps holds all shared dependencies for API handler methods.
// Scheduler may be nil.
type Deps struct {
	DB        *db.DB
	Config    *config.Config
	Sessions  *sessions.Store
	Analytics *analytics.Tracker
	Importer  *importer.Client
	Billing   *billing.Service
	Hub       *ws.Hub
	Notify    *notify.Dispatcher
	Webhook   *webhook.Dispatcher
	Scheduler *scheduler.Engine
	Version   string
}

// Handler serves the API routes.
type Handler struct {
	db        *db.DB
	config    *config.Config
	sessions  *sessions.Store
	analytics *analytics.Tracker
	importer  *importer.Client
	billing   *billing.Service
	hub       *ws.Hub
	notify    *notify.Dispatcher
	webhook   *webhook.Dispatcher
	scheduler *scheduler.Engine
	version   string
}

// New creates a Handler with all dependencies.
func New(d Deps) *Handler {
	return &Handler{
		db:        d.DB,
		config:    d.Config,
		sessions:  d.Sessions,
		analytics: d.Analytics,
		importer:  d.Importer,
		billing:   d.Billing,
		hub:       d.Hub,
		notify:    d.Notify,
		webhook:   d.Webhook,
		scheduler: d.Scheduler,
		version:   d.Version,
	}
}

// ── Response helpers ──────────────────────────────────────────────────────────

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response{Success: true, Data: data})
}

func created(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response{Success: true, Data: data})
}

func fail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response{Success: false, Error: msg})
}

// decode reads a JSON body. Oversized bodies surface as *http.MaxBytesError.
func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// failDecode answers a body that could not be decoded.
func failDecode(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		fail(w, http.StatusRequestEntityTooLarge, "body_too_large")
		return
	}
	fail(w, http.StatusBadRequest, "invalid_json")
}

func pathID(r *http.Request, name string) string {
	return r.PathValue(name)
}

// queryInt returns the integer query parameter name clamped to [min, max],
// or def when it is missing or malformed.
func queryInt(r *http.Request, name string, def, min, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// track records an analytics event and logs failures without failing the request.
func (h *Handler) track(r *http.Request, name, sessionID string, props map[string]string) {
	if err := h.analytics.Track(r.Context(), analytics.Event{Name: name, SessionID: sessionID, Props: props}); err != nil {
		log.Printf("handlers: track %s: %v", name, err)
	}
}
