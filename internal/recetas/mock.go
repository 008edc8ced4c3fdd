package recetas

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dukerupert/botica/internal/domain"
)

// MockService records uploads and serves statuses from a map.
type MockService struct {
	UploadFunc func(ctx context.Context, req UploadRequest) (Submission, error)
	StatusFunc func(ctx context.Context, token, remoteID string) (domain.ValidationStatus, string, error)

	mu       sync.Mutex
	uploads  []UploadRequest
	statuses map[string]domain.ValidationStatus
	next     int
}

// NewMockService returns a mock whose uploads succeed as pending.
func NewMockService() *MockService {
	return &MockService{statuses: make(map[string]domain.ValidationStatus)}
}

// Upload delegates to UploadFunc or assigns a sequential remote id.
func (m *MockService) Upload(ctx context.Context, req UploadRequest) (Submission, error) {
	if req.Document != nil {
		_, _ = io.Copy(io.Discard, req.Document)
	}
	m.mu.Lock()
	m.uploads = append(m.uploads, req)
	m.next++
	id := fmt.Sprintf("rec-%d", m.next)
	m.mu.Unlock()

	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, req)
	}
	return Submission{ID: id, Status: domain.ValidationPending}, nil
}

// Status delegates to StatusFunc or returns the status set with SetStatus.
func (m *MockService) Status(ctx context.Context, token, remoteID string) (domain.ValidationStatus, string, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, token, remoteID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.statuses[remoteID]; ok {
		return st, "", nil
	}
	return domain.ValidationPending, "", nil
}

// SetStatus sets the verdict returned for remoteID.
func (m *MockService) SetStatus(remoteID string, st domain.ValidationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[remoteID] = st
}

// Uploads returns the requests received so far.
func (m *MockService) Uploads() []UploadRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UploadRequest(nil), m.uploads...)
}
