package identity

import (
	"context"

	"github.com/dukerupert/botica/internal/domain"
)

// MockService is a test implementation of Service.
type MockService struct {
	LoginFunc    func(ctx context.Context, req domain.LoginRequest) (string, error)
	MeFunc       func(ctx context.Context, token string) (domain.UserProfile, error)
	UpdateMeFunc func(ctx context.Context, token string, update domain.ProfileUpdate) (domain.UserProfile, error)
}

// Login delegates to LoginFunc or returns a fixed token.
func (m *MockService) Login(ctx context.Context, req domain.LoginRequest) (string, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return "test-token", nil
}

// Me delegates to MeFunc or returns a profile with a DNI.
func (m *MockService) Me(ctx context.Context, token string) (domain.UserProfile, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, token)
	}
	if token == "" {
		return domain.UserProfile{}, domain.WithOp(domain.ErrNotAuthenticated, "identity.me")
	}
	return domain.UserProfile{ID: "1", Name: "Ana", LastName: "Quispe", Email: "ana@example.com", DNI: "12345678"}, nil
}

// UpdateMe delegates to UpdateMeFunc or echoes the update.
func (m *MockService) UpdateMe(ctx context.Context, token string, update domain.ProfileUpdate) (domain.UserProfile, error) {
	if m.UpdateMeFunc != nil {
		return m.UpdateMeFunc(ctx, token, update)
	}
	return domain.UserProfile{Name: update.Name, LastName: update.LastName, DNI: update.DNI, District: update.District}, nil
}
