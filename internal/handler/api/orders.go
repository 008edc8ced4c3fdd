package api

import (
	"context"
	"net/http"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/handler"
)

// History lists the buyer's registered purchases.
type History interface {
	History(ctx context.Context, token string) ([]domain.Purchase, error)
}

// OrdersHandler serves the confirmation summary and purchase history.
type OrdersHandler struct {
	history  History
	sessions Sessions
}

// NewOrdersHandler creates an orders handler.
func NewOrdersHandler(history History, sessions Sessions) *OrdersHandler {
	return &OrdersHandler{history: history, sessions: sessions}
}

// Summary handles GET /api/orders/summary
func (h *OrdersHandler) Summary(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}

	summary, found, err := c.OrderSummary(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if !found {
		handler.ErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "api.order_summary", "No confirmed order yet"))
		return
	}

	handler.JSON(w, http.StatusOK, summary)
}

type historyResponse struct {
	Orders []domain.Purchase `json:"orders"`
}

// List handles GET /api/orders
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	token := bearer(r, c)
	if token == "" {
		handler.ErrorResponse(w, r, domain.WithOp(domain.ErrNotAuthenticated, "api.orders"))
		return
	}

	orders, err := h.history.History(r.Context(), token)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Purchase{}
	}

	handler.JSON(w, http.StatusOK, historyResponse{Orders: orders})
}
