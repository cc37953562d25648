package handlers

import (
	"net/http"
	"time"

	"github.com/Manjussha/budgetguard/internal/scheduler"
)

var startedAt = time.Now()

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var jobs []scheduler.JobInfo
	if h.scheduler != nil {
		jobs = h.scheduler.Jobs()
	}
	ok(w, map[string]interface{}{
		"status":     "ok",
		"version":    h.version,
		"ws_clients": h.hub.ClientCount(),
		"uptime":     time.Since(startedAt).Round(time.Second).String(),
		"jobs":       jobs,
	})
}
