package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

var (
	// ErrQueueFull is returned when the in-process buffer has no room.
	ErrQueueFull = errors.New("queue: buffer full")

	// ErrQueueClosed is returned when publishing after Close.
	ErrQueueClosed = errors.New("queue: closed")
)

var (
	_ Publisher = (*MemoryQueue)(nil)
	_ Consumer  = (*MemoryQueue)(nil)
)

// MemoryQueue is an in-process queue. Tasks do not survive a restart.
type MemoryQueue struct {
	buf    chan *domain.Task
	out    chan<- *domain.TaskMessage
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue holding up to size pending tasks and
// delivering them to out once Start runs.
func NewMemoryQueue(size int, out chan<- *domain.TaskMessage, logger *zap.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		buf:    make(chan *domain.Task, size),
		out:    out,
		logger: logger,
	}
}

// Publish never blocks; a full buffer is reported as ErrQueueFull.
func (q *MemoryQueue) Publish(ctx context.Context, task *domain.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.buf <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start forwards tasks to the consumer channel until ctx is cancelled or the queue is closed.
func (q *MemoryQueue) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task, ok := <-q.buf:
			if !ok {
				return nil
			}
			msg := &domain.TaskMessage{
				Task: task,
				Ack:  func() error { return nil },
				Nack: func(requeue bool) error {
					if !requeue {
						return nil
					}
					return q.Publish(context.Background(), task)
				},
			}
			select {
			case q.out <- msg:
			case <-ctx.Done():
				q.logger.Warn("dropping in-flight task on shutdown", zap.String("job_id", task.JobID.String()))
				return nil
			}
		}
	}
}

// Len returns the number of pending tasks.
func (q *MemoryQueue) Len() int {
	return len(q.buf)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.buf)
	return nil
}
