// Package queue hands detection tasks from submission to the worker pool.
package queue

import (
	"context"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

// Publisher enqueues detection tasks.
type Publisher interface {
	Publish(ctx context.Context, task *domain.Task) error
	Close() error
}

// Consumer delivers tasks, wrapped with ack callbacks, until ctx is cancelled.
type Consumer interface {
	Start(ctx context.Context) error
	Close() error
}
