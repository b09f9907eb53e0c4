package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/metrics"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// SweepUsecase fails jobs that have been processing for longer than staleAfter.
// These are jobs whose task was lost, e.g. queued in memory when the process stopped.
// A job whose processing lock is held by a worker is still being detected and is left alone.
type SweepUsecase struct {
	repo       repository.JobRepository
	idempotent repository.IdempotencyStore
	lifecycle  *Lifecycle
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewSweepUsecase creates a new SweepUsecase.
func NewSweepUsecase(repo repository.JobRepository, idempotent repository.IdempotencyStore, lifecycle *Lifecycle, staleAfter time.Duration, logger *zap.Logger) *SweepUsecase {
	return &SweepUsecase{
		repo:       repo,
		idempotent: idempotent,
		lifecycle:  lifecycle,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Execute returns how many jobs were moved to the error state.
func (uc *SweepUsecase) Execute(ctx context.Context) (int, error) {
	cutoff := uc.lifecycle.now().Add(-uc.staleAfter)
	jobs, err := uc.repo.ListByStatus(ctx, domain.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	swept := 0
	for _, job := range jobs {
		ok, err := uc.sweepOne(ctx, job.JobID)
		if err != nil {
			uc.logger.Error("Failed to sweep stale job", zap.String("job_id", job.JobID.String()), zap.Error(err))
			continue
		}
		if ok {
			swept++
			metrics.StaleJobsSwept.Inc()
		}
	}

	if swept > 0 {
		uc.logger.Warn("Swept stale jobs", zap.Int("count", swept), zap.Duration("stale_after", uc.staleAfter))
	}
	return swept, nil
}

// sweepOne takes the job's processing lock so it cannot race a worker. Holding
// the lock afterwards also turns a late delivery of the task into a duplicate.
func (uc *SweepUsecase) sweepOne(ctx context.Context, id uuid.UUID) (bool, error) {
	acquired, err := uc.idempotent.AcquireLock(ctx, id)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		uc.logger.Debug("Stale job is locked by a worker, skipping", zap.String("job_id", id.String()))
		return false, nil
	}
	defer func() {
		if err := uc.idempotent.ReleaseLock(ctx, id); err != nil {
			uc.logger.Warn("Failed to release idempotency lock", zap.String("job_id", id.String()), zap.Error(err))
		}
	}()

	if _, err := uc.lifecycle.Transition(ctx, id, domain.Failed()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewSweepScheduler runs the sweep every interval. The caller starts and shuts down the scheduler.
func NewSweepScheduler(ctx context.Context, uc *SweepUsecase, every time.Duration) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if _, err := uc.Execute(ctx); err != nil {
				uc.logger.Error("Stale job sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("stale-job-sweeper"),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
