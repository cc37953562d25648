package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Manjussha/budgetguard/internal/webhook"
)

// ListWebhooks handles GET /api/v1/webhooks.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.webhook.List(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, "query: "+err.Error())
		return
	}
	ok(w, hooks)
}

// CreateWebhook handles POST /api/v1/webhooks.
func (h *Handler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		URL    string `json:"url"`
		Events string `json:"events"`
	}
	if err := decode(r, &req); err != nil {
		failDecode(w, err)
		return
	}
	if req.URL == "" {
		fail(w, http.StatusBadRequest, "url is required")
		return
	}
	wh, err := h.webhook.Create(r.Context(), req.Name, req.URL, req.Events)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	created(w, wh)
}

// DeleteWebhook handles DELETE /api/v1/webhooks/{id}.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(pathID(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	err = h.webhook.Delete(r.Context(), id)
	if errors.Is(err, webhook.ErrNotFound) {
		fail(w, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		fail(w, http.StatusInternalServerError, "delete: "+err.Error())
		return
	}
	ok(w, map[string]string{"message": "deleted"})
}

// TestWebhook handles POST /api/v1/webhooks/{id}/test.
func (h *Handler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(pathID(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}
	err = h.webhook.TestWebhook(r.Context(), id)
	if errors.Is(err, webhook.ErrNotFound) {
		fail(w, http.StatusNotFound, "webhook not found")
		return
	}
	if err != nil {
		fail(w, http.StatusBadGateway, "test failed: "+err.Error())
		return
	}
	ok(w, map[string]string{"message": "test delivered"})
}
