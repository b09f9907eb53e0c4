package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

// MutateFunc changes a job in place. Returning an error aborts the update.
type MutateFunc func(job *domain.Job) error

// JobRepository defines the interface for job persistence operations.
// Implementations must be safe for concurrent use and return copies,
// never references to stored state.
type JobRepository interface {
	// Create inserts a new job. Returns domain.ErrJobAlreadyExists on ID collision.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its UUID. Returns domain.ErrJobNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Update applies mutate to the stored job atomically with respect to readers
	// and returns the updated copy.
	Update(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*domain.Job, error)

	// ListByStatus returns jobs in the given status created before olderThan.
	ListByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Time) ([]*domain.Job, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// IdempotencyStore defines the interface for per-job processing locks.
type IdempotencyStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a job.
	// Returns true if the lock was acquired (first time), false if already locked (duplicate).
	AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error)

	// ReleaseLock marks the lock for eventual cleanup.
	ReleaseLock(ctx context.Context, jobID uuid.UUID) error
}
