package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/detector"
	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/metrics"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// ArtifactChecker reports whether a stored artifact exists.
type ArtifactChecker interface {
	Exists(path string) bool
}

// ProcessJobUsecase runs detection for one task and records the outcome.
type ProcessJobUsecase struct {
	repo       repository.JobRepository
	idempotent repository.IdempotencyStore
	lifecycle  *Lifecycle
	detector   detector.Detector
	artifacts  ArtifactChecker
	logger     *zap.Logger
}

// NewProcessJobUsecase creates a new ProcessJobUsecase.
func NewProcessJobUsecase(
	repo repository.JobRepository,
	idempotent repository.IdempotencyStore,
	lifecycle *Lifecycle,
	det detector.Detector,
	artifacts ArtifactChecker,
	logger *zap.Logger,
) *ProcessJobUsecase {
	return &ProcessJobUsecase{
		repo:       repo,
		idempotent: idempotent,
		lifecycle:  lifecycle,
		detector:   det,
		artifacts:  artifacts,
		logger:     logger,
	}
}

// Execute processes a single task: idempotency check → detection → terminal transition.
// Detection and artifact failures end in the error state and are not returned;
// only failures to record the outcome are. Returns (isDuplicate, error).
func (uc *ProcessJobUsecase) Execute(ctx context.Context, task *domain.Task) (bool, error) {
	logger := uc.logger.With(zap.String("job_id", task.JobID.String()))

	acquired, err := uc.idempotent.AcquireLock(ctx, task.JobID)
	if err != nil {
		logger.Error("Failed to acquire idempotency lock", zap.Error(err))
		return false, err
	}
	if !acquired {
		logger.Info("Duplicate task detected, skipping")
		return true, nil
	}
	defer func() {
		if err := uc.idempotent.ReleaseLock(ctx, task.JobID); err != nil {
			logger.Warn("Failed to release idempotency lock", zap.Error(err))
		}
	}()

	job, err := uc.repo.GetByID(ctx, task.JobID)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		logger.Warn("Task refers to unknown job, dropping")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load job: %w", err)
	}
	if job.Status.IsTerminal() {
		logger.Info("Job already finished, skipping", zap.String("status", string(job.Status)))
		return true, nil
	}

	start := time.Now()
	det, err := uc.detect(ctx, task)
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())

	transition := domain.Failed()
	switch {
	case err != nil:
		logger.Error("Detection failed", zap.Error(err))
	case !uc.artifacts.Exists(det.AnnotatedPath):
		logger.Error("Detection produced no result image", zap.String("path", det.AnnotatedPath))
	default:
		transition = domain.Done(det.Count, det.AnnotatedPath)
		metrics.VehiclesDetected.Observe(float64(det.Count))
	}

	if _, err := uc.lifecycle.Transition(ctx, task.JobID, transition); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Finished elsewhere (e.g. the stale sweeper) while we were detecting.
			logger.Warn("Job left processing during detection", zap.Error(err))
			return false, nil
		}
		logger.Error("Failed to record job outcome", zap.Error(err))
		return false, fmt.Errorf("record outcome: %w", err)
	}
	return false, nil
}

// detect turns panics and empty results into ErrDetectionFailed.
func (uc *ProcessJobUsecase) detect(ctx context.Context, task *domain.Task) (det *domain.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			det, err = nil, fmt.Errorf("%w: panic: %v", domain.ErrDetectionFailed, r)
		}
	}()

	det, err = uc.detector.Detect(ctx, task.UploadPath, task.ResultPath)
	if err != nil {
		return nil, err
	}
	if det == nil {
		return nil, fmt.Errorf("%w: detector returned no result", domain.ErrDetectionFailed)
	}
	if det.AnnotatedPath == "" {
		det.AnnotatedPath = task.ResultPath
	}
	return det, nil
}
