// Package catalog reads products from the catalog service. The cart only
// trusts prices and prescription flags that come from here.
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/httpclient"
)

// Service looks up products.
type Service interface {
	Product(ctx context.Context, id int64) (domain.Product, error)
}

// Client implements Service over HTTP.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a catalog client.
func NewClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

// Product fetches product id. A 404 maps to domain.ErrProductNotFound.
func (c *Client) Product(ctx context.Context, id int64) (domain.Product, error) {
	const op = "catalog.product"

	var p envelope
	err := c.http.Do(ctx, httpclient.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   "/productos/" + strconv.FormatInt(id, 10),
	}, &p)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return domain.Product{}, domain.WithOp(domain.ErrProductNotFound, op)
		}
		return domain.Product{}, err
	}
	if p.ID == 0 {
		p.ID = id
	}
	return domain.Product(p), nil
}

// envelope accepts both a bare product and {"producto": {...}}.
type envelope domain.Product

func (e *envelope) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Producto *domain.Product `json:"producto"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Producto != nil {
		*e = envelope(*wrapped.Producto)
		return nil
	}
	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = envelope(p)
	return nil
}
