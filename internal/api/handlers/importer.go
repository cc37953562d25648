package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/importer"
)

// ImportWorkflow handles POST /api/v1/import.
func (h *Handler) ImportWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil {
		failDecode(w, err)
		return
	}

	text, err := h.importer.Fetch(r.Context(), req.URL)
	if err != nil {
		code, kind := http.StatusBadGateway, "upstream_error"
		switch {
		case errors.Is(err, importer.ErrBadURL):
			code, kind = http.StatusBadRequest, "bad_url"
		case errors.Is(err, importer.ErrTooLarge):
			code, kind = http.StatusRequestEntityTooLarge, "too_large"
		}
		log.Printf("handlers.ImportWorkflow: %v", err)
		h.track(r, analytics.ImportFailed, "", map[string]string{"kind": kind})
		fail(w, code, kind)
		return
	}

	h.track(r, analytics.ImportSucceeded, "", nil)
	ok(w, map[string]string{"workflowYaml": text})
}
