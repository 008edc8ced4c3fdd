package domain

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CART DOMAIN ERRORS
// =============================================================================

var (
	ErrCartItemNotFound = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrInvalidQuantity  = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
	ErrCartLocked       = &Error{Code: ELOCKED, Message: "Cart is held by a checkout in progress"}
	ErrEmptyCart        = &Error{Code: EINVALID, Message: "Cart is empty"}
)

// CartItem is one line of the buyer's cart.
// Quantity is always at least 1; a line that reaches zero is removed.
type CartItem struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"nombre"`
	UnitPrice            decimal.Decimal `json:"precio"`
	Quantity             int             `json:"quantity"`
	RequiresPrescription bool            `json:"requiere_receta"`
}

// LineTotal returns unit price multiplied by quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartSummary aggregates cart lines with calculated totals.
type CartSummary struct {
	Items                []CartItem      `json:"items"`
	Total                decimal.Decimal `json:"total"`
	ItemCount            int             `json:"item_count"`
	RequiresPrescription bool            `json:"requires_prescription"`
	Locked               bool            `json:"locked"`
}

// CartTotal sums the line totals of items.
func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// PrescriptionItems returns the lines that require a prescription, in cart order.
func PrescriptionItems(items []CartItem) []CartItem {
	var out []CartItem
	for _, it := range items {
		if it.RequiresPrescription {
			out = append(out, it)
		}
	}
	return out
}
