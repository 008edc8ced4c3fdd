package api

import (
	"net/http"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/handler"
)

// CheckoutHandler drives checkout attempts.
type CheckoutHandler struct {
	sessions Sessions
}

// NewCheckoutHandler creates a checkout handler.
func NewCheckoutHandler(sessions Sessions) *CheckoutHandler {
	return &CheckoutHandler{sessions: sessions}
}

type submitRequest struct {
	// Consent is the buyer's sworn statement that the prescriptions are genuine.
	Consent bool `json:"consent"`
}

type purchaseRequest struct {
	IntentID string `json:"intent_id"`
	domain.PaymentMeta
}

// Submit handles POST /api/checkout/submit
// The response arrives once every upload and poll of the attempt settled.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "api.checkout_submit"

	var req submitRequest
	if err := decodeOptional(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	view, err := c.Submit(r.Context(), req.Consent)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, view)
}

// Decision handles GET /api/checkout/decision
func (h *CheckoutHandler) Decision(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	handler.JSON(w, http.StatusOK, c.Decision())
}

// Purchase handles POST /api/checkout/purchase
func (h *CheckoutHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	const op = "api.checkout_purchase"

	var req purchaseRequest
	if err := decodeOptional(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	receipt, err := c.Purchase(r.Context(), req.IntentID, req.PaymentMeta)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusCreated, receipt)
}

// Abandon handles POST /api/checkout/abandon
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	c.Abandon(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
