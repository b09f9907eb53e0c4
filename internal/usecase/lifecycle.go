package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/metrics"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// Broadcaster fans job events out to live observers.
type Broadcaster interface {
	Broadcast(event domain.Event)
}

// Lifecycle owns the job state machine. Every change is written to the store
// first and broadcast second, so an observer that queries after receiving an
// event never sees an older state.
type Lifecycle struct {
	repo   repository.JobRepository
	hub    Broadcaster
	now    func() time.Time
	logger *zap.Logger
}

// NewLifecycle creates a new Lifecycle.
func NewLifecycle(repo repository.JobRepository, hub Broadcaster, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		repo:   repo,
		hub:    hub,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Create persists a new processing job and announces it.
func (l *Lifecycle) Create(ctx context.Context, job *domain.Job) error {
	if err := l.repo.Create(ctx, job); err != nil {
		return err
	}
	l.hub.Broadcast(domain.EventFor(job))
	return nil
}

// Transition moves a job into a terminal state and announces the stored result.
func (l *Lifecycle) Transition(ctx context.Context, id uuid.UUID, t domain.Transition) (*domain.Job, error) {
	job, err := l.repo.Update(ctx, id, func(j *domain.Job) error {
		return j.Apply(t, l.now())
	})
	if err != nil {
		return nil, err
	}

	l.hub.Broadcast(domain.EventFor(job))
	metrics.JobsFinished.WithLabelValues(string(job.Status)).Inc()

	l.logger.Info("Job transitioned",
		zap.String("job_id", id.String()),
		zap.String("status", string(job.Status)),
		zap.Int("count", job.Count),
	)
	return job, nil
}
