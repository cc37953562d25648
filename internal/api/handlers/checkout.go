package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Manjussha/budgetguard/internal/analytics"
	"github.com/Manjussha/budgetguard/internal/billing"
	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/notify"
	"github.com/Manjussha/budgetguard/internal/sessions"
	"github.com/Manjussha/budgetguard/internal/ws"
)

// billingFailure maps billing errors to a status and error code.
func billingFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrCheckoutNotFound):
		fail(w, http.StatusNotFound, "checkout_not_found")
	case errors.Is(err, sessions.ErrNotFound):
		fail(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, billing.ErrInvalidProof):
		fail(w, http.StatusBadRequest, "invalid_proof")
	case errors.Is(err, billing.ErrCheckoutExpired):
		fail(w, http.StatusGone, "checkout_expired")
	case errors.Is(err, billing.ErrNotPaid):
		fail(w, http.StatusPaymentRequired, "payment_required")
	default:
		log.Printf("handlers: billing: %v", err)
		fail(w, http.StatusInternalServerError, "internal_error")
	}
}

// CreateCheckout handles POST /api/v1/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := decode(r, &req); err != nil {
		failDecode(w, err)
		return
	}
	c, err := h.billing.Create(r.Context(), req.SessionID)
	if err != nil {
		billingFailure(w, err)
		return
	}
	h.track(r, analytics.CheckoutStarted, c.SessionID, map[string]string{"price_usd": c.PriceUSD})
	created(w, map[string]interface{}{
		"checkout": c,
		"pay_url":  "/api/v1/checkout/" + c.ID + "/pay",
	})
}

// PayCheckout handles GET /api/v1/checkout/{id}/pay. It stands in for the
// payment provider and hands back the proof a real charge would produce.
func (h *Handler) PayCheckout(w http.ResponseWriter, r *http.Request) {
	c, err := h.billing.Get(r.Context(), pathID(r, "id"))
	if err != nil {
		billingFailure(w, err)
		return
	}
	if c.Status == db.CheckoutExpired {
		fail(w, http.StatusGone, "checkout_expired")
		return
	}
	ok(w, map[string]string{
		"checkout_id": c.ID,
		"price_usd":   c.PriceUSD,
		"proof":       h.billing.Proof(c.ID),
	})
}

// ConfirmCheckout handles POST /api/v1/checkout/{id}/confirm.
func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Proof string `json:"proof"`
	}
	if err := decode(r, &req); err != nil {
		failDecode(w, err)
		return
	}
	c, first, err := h.billing.Confirm(r.Context(), pathID(r, "id"), req.Proof)
	if err != nil {
		billingFailure(w, err)
		return
	}

	if first {
		h.track(r, analytics.CheckoutPaid, c.SessionID, map[string]string{"price_usd": c.PriceUSD})
		h.hub.Publish(ws.CheckoutPaid, c.SessionID, map[string]string{"checkout_id": c.ID})
		h.notify.Send(notify.EventCheckoutPaid, map[string]interface{}{
			"checkout_id": c.ID,
			"session_id":  c.SessionID,
			"price_usd":   c.PriceUSD,
		})
	}
	ok(w, c)
}
