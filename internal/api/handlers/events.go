package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Manjussha/budgetguard/internal/analytics"
)

// TrackEvent handles POST /api/v1/events.
func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var ev analytics.Event
	if err := decode(r, &ev); err != nil {
		failDecode(w, err)
		return
	}
	err := h.analytics.Track(r.Context(), ev)
	if errors.Is(err, analytics.ErrUnknownEvent) {
		fail(w, http.StatusBadRequest, "unknown_event")
		return
	}
	if err != nil {
		log.Printf("handlers.TrackEvent: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}
	created(w, map[string]string{"name": ev.Name})
}

// Metrics handles GET /api/v1/metrics?days=N.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30, 1, 365)
	rep, err := h.analytics.Summary(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		log.Printf("handlers.Metrics: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}
	ok(w, map[string]interface{}{
		"days":    days,
		"summary": rep,
	})
}
