package catalog

import (
	"context"
	"sync"

	"github.com/dukerupert/botica/internal/domain"
)

// MockService serves products from a map.
type MockService struct {
	ProductFunc func(ctx context.Context, id int64) (domain.Product, error)

	mu       sync.Mutex
	products map[int64]domain.Product
}

// NewMockService returns a mock holding products.
func NewMockService(products ...domain.Product) *MockService {
	m := &MockService{products: make(map[int64]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Product delegates to ProductFunc or looks the product up in the map.
func (m *MockService) Product(ctx context.Context, id int64) (domain.Product, error) {
	if m.ProductFunc != nil {
		return m.ProductFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.WithOp(domain.ErrProductNotFound, "catalog.product")
	}
	return p, nil
}
