// Package memory provides in-process implementations of the repository
// interfaces. State lives for the lifetime of the process only.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// Ensure memJobRepo implements repository.JobRepository.
var _ repository.JobRepository = (*memJobRepo)(nil)

type memJobRepo struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

// NewJobRepository creates an empty in-memory job repository.
func NewJobRepository() repository.JobRepository {
	return &memJobRepo{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (r *memJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.JobID]; exists {
		return domain.ErrJobAlreadyExists
	}
	r.jobs[job.JobID] = job.Clone()
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update mutates a working copy and swaps it in only if mutate succeeds.
func (r *memJobRepo) Update(_ context.Context, id uuid.UUID, mutate repository.MutateFunc) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	next := job.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	r.jobs[id] = next
	return next.Clone(), nil
}

func (r *memJobRepo) ListByStatus(_ context.Context, status domain.JobStatus, olderThan time.Time) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Job
	for _, job := range r.jobs {
		if job.Status == status && job.CreatedAt.Before(olderThan) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memJobRepo) Ping(context.Context) error { return nil }
