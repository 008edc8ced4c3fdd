package orchestrator

import (
	"context"
	"sync"

	"github.com/dukerupert/botica/internal/domain"
)

// MockService is a test implementation of Service.
type MockService struct {
	RequestValidationFunc func(ctx context.Context, token, remoteID, patientID string) (domain.ValidationStatus, error)
	RegisterPurchaseFunc  func(ctx context.Context, req PurchaseRequest) (Registration, error)
	HistoryFunc           func(ctx context.Context, token string) ([]domain.Purchase, error)

	mu        sync.Mutex
	purchases []PurchaseRequest
	validated []string
}

// RequestValidation delegates to RequestValidationFunc or acknowledges as pending.
func (m *MockService) RequestValidation(ctx context.Context, token, remoteID, patientID string) (domain.ValidationStatus, error) {
	m.mu.Lock()
	m.validated = append(m.validated, remoteID)
	m.mu.Unlock()
	if m.RequestValidationFunc != nil {
		return m.RequestValidationFunc(ctx, token, remoteID, patientID)
	}
	return domain.ValidationPending, nil
}

// RegisterPurchase delegates to RegisterPurchaseFunc or returns a fixed order id.
func (m *MockService) RegisterPurchase(ctx context.Context, req PurchaseRequest) (Registration, error) {
	m.mu.Lock()
	m.purchases = append(m.purchases, req)
	m.mu.Unlock()
	if m.RegisterPurchaseFunc != nil {
		return m.RegisterPurchaseFunc(ctx, req)
	}
	return Registration{OrderID: "order-1", Message: "Compra registrada"}, nil
}

// History delegates to HistoryFunc or returns no purchases.
func (m *MockService) History(ctx context.Context, token string) ([]domain.Purchase, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, token)
	}
	return []domain.Purchase{}, nil
}

// Purchases returns the registration requests received so far.
func (m *MockService) Purchases() []PurchaseRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PurchaseRequest(nil), m.purchases...)
}

// ValidationRequests returns the remote ids passed to RequestValidation.
func (m *MockService) ValidationRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.validated...)
}
