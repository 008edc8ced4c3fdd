package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = &Error{Code: ENOTFOUND, Message: "Product not found"}
	ErrOutOfStock      = &Error{Code: ECONFLICT, Message: "Product is out of stock"}
)

// Product is the catalog service's Producto document.
// Only the fields the cart needs are kept.
type Product struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"nombre"`
	Type                 string          `json:"tipo,omitempty"`
	Price                decimal.Decimal `json:"precio"`
	Stock                int             `json:"stock"`
	RequiresPrescription Flag            `json:"requiere_receta"`
}

// CartItem converts the product into a cart line of the given quantity.
func (p Product) CartItem(quantity int) CartItem {
	return CartItem{
		ID:                   p.ID,
		Name:                 p.Name,
		UnitPrice:            p.Price,
		Quantity:             quantity,
		RequiresPrescription: bool(p.RequiresPrescription),
	}
}

// Flag decodes the catalog's 0/1 numeric booleans as well as JSON booleans.
type Flag bool

// UnmarshalJSON accepts true, false, 0, 1, "0" and "1".
func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = n != "0" && n != ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = s == "1" || s == "true"
	return nil
}
