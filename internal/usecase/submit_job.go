package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/metrics"
	"github.com/Harsh-BH/vehicle-counter/internal/queue"
)

// UploadStore persists uploads and names result artifacts.
type UploadStore interface {
	SaveUpload(id uuid.UUID, filename string, body []byte) (string, error)
	RemoveUpload(path string) error
	ResultPath(id uuid.UUID, uploadPath string) string
}

// SubmitJobUsecase accepts an image, records the job and hands detection to the queue.
type SubmitJobUsecase struct {
	lifecycle *Lifecycle
	uploads   UploadStore
	publisher queue.Publisher
	logger    *zap.Logger
}

// NewSubmitJobUsecase creates a new SubmitJobUsecase.
func NewSubmitJobUsecase(lifecycle *Lifecycle, uploads UploadStore, pub queue.Publisher, logger *zap.Logger) *SubmitJobUsecase {
	return &SubmitJobUsecase{
		lifecycle: lifecycle,
		uploads:   uploads,
		publisher: pub,
		logger:    logger,
	}
}

// Execute returns as soon as the processing record is stored and broadcast.
// Detection happens later on a worker.
func (uc *SubmitJobUsecase) Execute(ctx context.Context, req *domain.SubmitRequest) (*domain.SubmitResponse, error) {
	if len(req.Body) == 0 {
		return nil, domain.ErrEmptyUpload
	}
	if !isImage(req.ContentType) {
		return nil, domain.ErrInvalidContentType
	}
	if sniffed := mimetype.Detect(req.Body); !isImage(sniffed.String()) {
		uc.logger.Debug("Upload content is not an image",
			zap.String("declared", req.ContentType),
			zap.String("detected", sniffed.String()),
		)
		return nil, domain.ErrInvalidContentType
	}

	// UUIDv7 keeps ids roughly ordered by submission time.
	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}

	uploadPath, err := uc.uploads.SaveUpload(jobID, req.Filename, req.Body)
	if err != nil {
		uc.logger.Error("Failed to store upload", zap.Error(err), zap.String("job_id", jobID.String()))
		return nil, err
	}

	job := domain.NewJob(jobID, uploadPath, uc.lifecycle.now())
	if err := uc.lifecycle.Create(ctx, job); err != nil {
		uc.logger.Error("Failed to create job", zap.Error(err), zap.String("job_id", jobID.String()))
		if rerr := uc.uploads.RemoveUpload(uploadPath); rerr != nil {
			uc.logger.Warn("Failed to remove orphaned upload", zap.Error(rerr), zap.String("path", uploadPath))
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.JobsSubmitted.Inc()

	// The job exists now; a client hanging up must not leave it processing
	// without a queued task.
	ctx = context.WithoutCancel(ctx)

	task := &domain.Task{
		JobID:      jobID,
		UploadPath: uploadPath,
		ResultPath: uc.uploads.ResultPath(jobID, uploadPath),
	}
	if err := uc.publisher.Publish(ctx, task); err != nil {
		uc.logger.Error("Failed to enqueue detection task", zap.Error(err), zap.String("job_id", jobID.String()))
		// Nothing will ever pick this job up, so it must not stay processing.
		if _, terr := uc.lifecycle.Transition(ctx, jobID, domain.Failed()); terr != nil {
			uc.logger.Error("Failed to mark unqueued job as error", zap.Error(terr), zap.String("job_id", jobID.String()))
		}
		return nil, domain.ErrQueueUnavailable
	}

	uc.logger.Info("Job submitted successfully",
		zap.String("job_id", jobID.String()),
		zap.String("filename", req.Filename),
		zap.Int("bytes", len(req.Body)),
	)

	return &domain.SubmitResponse{
		JobID:  jobID,
		Status: domain.StatusProcessing,
	}, nil
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
