package events

import (
	"context"
	"sync"
)

// MockPublisher records published events.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, e Event) error

	mu     sync.Mutex
	events []Event
	closed bool
}

// Publish records e and delegates to PublishFunc when set.
func (m *MockPublisher) Publish(ctx context.Context, e Event) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns the events published so far.
func (m *MockPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the types of the events published so far.
func (m *MockPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}
