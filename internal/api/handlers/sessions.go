package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/estimator"
	"github.com/Manjussha/budgetguard/internal/policypack"
	"github.com/Manjussha/budgetguard/internal/sessions"
)

type sessionResponse struct {
	Session *db.Session      `json:"session"`
	Result  estimator.Result `json:"result"`
	Snippet string           `json:"snippet"`
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), pathID(r, "id"))
	if errors.Is(err, sessions.ErrNotFound) {
		fail(w, http.StatusNotFound, "session_not_found")
		return
	}
	if err != nil {
		log.Printf("handlers.GetSession: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}
	res, err := sessions.Result(sess)
	if err != nil {
		log.Printf("handlers.GetSession: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}
	ok(w, sessionResponse{Session: sess, Result: res, Snippet: policypack.Snippet(res)})
}

// ListSessions handles GET /api/v1/sessions?limit=N.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.Recent(r.Context(), queryInt(r, "limit", 20, 1, 100))
	if err != nil {
		log.Printf("handlers.ListSessions: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if list == nil {
		list = []db.Session{}
	}
	ok(w, list)
}
