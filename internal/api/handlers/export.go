package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/policypack"
	"github.com/Manjussha/budgetguard/internal/sessions"
	"github.com/Manjussha/budgetguard/internal/ws"
)

// ExportPack handles GET /api/v1/export/{sessionId}?checkout=ID.
func (h *Handler) ExportPack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := pathID(r, "sessionId")

	sess, err := h.sessions.Get(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		fail(w, http.StatusNotFound, "session_not_found")
		return
	}
	if err != nil {
		log.Printf("handlers.ExportPack: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if err := h.billing.Authorize(ctx, r.URL.Query().Get("checkout"), sessionID); err != nil {
		billingFailure(w, err)
		return
	}

	res, err := sessions.Result(sess)
	if err != nil {
		log.Printf("handlers.ExportPack: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}
	pack, err := policypack.Build(sess, res)
	if err != nil {
		log.Printf("handlers.ExportPack: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}

	h.track(r, analytics.PackExported, sessionID, nil)
	h.hub.Publish(ws.PackExported, sessionID, nil)
	ok(w, pack)
}
