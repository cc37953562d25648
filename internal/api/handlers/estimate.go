package handlers

import (
	"log"
	"net/http"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/estimator"
	"github.com/Manjussha/budgetguard/internal/notify"
	"github.com/Manjussha/budgetguard/internal/policypack"
	"github.com/Manjussha/budgetguard/internal/ws"
)

type estimateResponse struct {
	SessionID string `json:"sessionId"`
	estimator.Result
	Snippet string `json:"snippet"`
}

// CreateEstimate handles POST /api/v1/estimate.
func (h *Handler) CreateEstimate(w http.ResponseWriter, r *http.Request) {
	var raw estimator.RawFields
	if err := decode(r, &raw); err != nil {
		failDecode(w, err)
		return
	}

	in, err := estimator.Sanitize(raw)
	if err != nil {
		kind := string(estimator.KindOf(err))
		h.track(r, analytics.EstimateFailed, "", map[string]string{"kind": kind})
		fail(w, http.StatusBadRequest, kind)
		return
	}

	res := estimator.Estimate(in)
	sess, err := h.sessions.Save(r.Context(), in, res)
	if err != nil {
		log.Printf("handlers.CreateEstimate: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
		return
	}

	sum := res.Summary
	h.track(r, analytics.EstimateCreated, sess.ID, map[string]string{
		"decision": string(sum.Decision),
		"mode":     string(sum.PolicyMode),
	})
	h.hub.Publish(ws.EstimateCreated, sess.ID, sum)
	if sum.Decision == estimator.DecisionBlock {
		h.notify.Send(notify.EventEstimateBlocked, map[string]interface{}{
			"session_id":       sess.ID,
			"monthly_cost_usd": sum.MonthlyCostUSD,
			"budget_usd":       sum.BudgetUSD,
			"monthly_runs":     sum.MonthlyRuns,
		})
	}

	ok(w, estimateResponse{SessionID: sess.ID, Result: res, Snippet: policypack.Snippet(res)})
}
