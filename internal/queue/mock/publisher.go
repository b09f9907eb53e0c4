package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/queue"
)

// Ensure MockPublisher implements queue.Publisher.
var _ queue.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock task publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.Task
	PublishFn func(ctx context.Context, task *domain.Task) error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, task *domain.Task) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, task)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, task)
	return nil
}

// Tasks returns a copy of the published tasks.
func (m *MockPublisher) Tasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Task(nil), m.Published...)
}

func (m *MockPublisher) Close() error {
	return nil
}
