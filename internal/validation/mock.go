package validation

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/botica/internal/domain"
)

// FakeClock fires every After immediately and advances its own time by the
// requested duration, so poll loops run without sleeping.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

// NewFakeClock starts the clock at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Waits returns the durations requested so far.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// MockRequester is a function-field Requester.
type MockRequester struct {
	RequestValidationFunc func(ctx context.Context, token, remoteID, patientID string) (domain.ValidationStatus, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockRequester) RequestValidation(ctx context.Context, token, remoteID, patientID string) (domain.ValidationStatus, error) {
	m.mu.Lock()
	m.calls = append(m.calls, remoteID)
	m.mu.Unlock()
	if m.RequestValidationFunc != nil {
		return m.RequestValidationFunc(ctx, token, remoteID, patientID)
	}
	return domain.ValidationPending, nil
}

// Calls returns the remote ids requested so far.
func (m *MockRequester) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockQuerier is a function-field StatusQuerier.
type MockQuerier struct {
	StatusFunc func(ctx context.Context, token, remoteID string) (domain.ValidationStatus, string, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockQuerier) Status(ctx context.Context, token, remoteID string) (domain.ValidationStatus, string, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[remoteID]++
	m.mu.Unlock()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, token, remoteID)
	}
	return domain.ValidationPending, "", nil
}

// CallCount returns how many times remoteID was queried.
func (m *MockQuerier) CallCount(remoteID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[remoteID]
}
