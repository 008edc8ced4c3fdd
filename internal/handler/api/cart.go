package api

import (
	"net/http"

	"github.com/dukerupert/botica/internal/catalog"
	"github.com/dukerupert/botica/internal/checkout"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/handler"
	"github.com/dukerupert/botica/internal/validate"
)

// CartHandler handles the cart routes. Prices and the prescription flag come
// from the catalog; the client only names a product and a quantity.
type CartHandler struct {
	catalog  catalog.Service
	sessions Sessions
}

// NewCartHandler creates a cart handler.
func NewCartHandler(catalog catalog.Service, sessions Sessions) *CartHandler {
	return &CartHandler{catalog: catalog, sessions: sessions}
}

type cartResponse struct {
	domain.CartSummary
	// Unassigned lists prescription items not yet on any draft.
	Unassigned []domain.CartItem `json:"unassigned"`
}

type addItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"omitempty,min=1,max=99"`
}

func cartView(c *checkout.Coordinator) cartResponse {
	resp := cartResponse{CartSummary: c.Cart(), Unassigned: c.Unassigned()}
	if resp.Items == nil {
		resp.Items = []domain.CartItem{}
	}
	if resp.Unassigned == nil {
		resp.Unassigned = []domain.CartItem{}
	}
	return resp
}

// View handles GET /api/cart
func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	handler.JSON(w, http.StatusOK, cartView(c))
}

// Add handles POST /api/cart/items
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	const op = "api.cart_add"
	ctx := r.Context()

	var req addItemRequest
	if err := handler.DecodeJSON(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := validate.Struct(op, req); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}

	product, err := h.catalog.Product(ctx, req.ProductID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := c.AddItem(ctx, product, req.Quantity); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, cartView(c))
}

// Remove handles DELETE /api/cart/items/{id}
// One unit is removed; the line goes away when it reaches zero.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	const op = "api.cart_remove"

	id, err := pathID(r, op)
	if err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	if err := c.RemoveOne(r.Context(), id); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, cartView(c))
}
