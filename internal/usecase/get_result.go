package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// GetResultUsecase locates the annotated image of a finished job.
type GetResultUsecase struct {
	repo      repository.JobRepository
	artifacts ArtifactChecker
	logger    *zap.Logger
}

// NewGetResultUsecase creates a new GetResultUsecase.
func NewGetResultUsecase(repo repository.JobRepository, artifacts ArtifactChecker, logger *zap.Logger) *GetResultUsecase {
	return &GetResultUsecase{
		repo:      repo,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Execute returns the result path, ErrJobNotFound, or ErrResultNotReady when
// the job has not succeeded or its artifact is gone.
func (uc *GetResultUsecase) Execute(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != domain.StatusDone || !uc.artifacts.Exists(job.ResultPath) {
		uc.logger.Debug("Result not ready",
			zap.String("job_id", id.String()),
			zap.String("status", string(job.Status)),
		)
		return "", domain.ErrResultNotReady
	}
	return job.ResultPath, nil
}
