package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/usecase"
)

const uploadField = "file"

// ImageHandler handles image submission and job queries.
type ImageHandler struct {
	submitUC    *usecase.SubmitJobUsecase
	getJobUC    *usecase.GetJobUsecase
	getResultUC *usecase.GetResultUsecase
	logger      *zap.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(submitUC *usecase.SubmitJobUsecase, getJobUC *usecase.GetJobUsecase, getResultUC *usecase.GetResultUsecase, logger *zap.Logger) *ImageHandler {
	return &ImageHandler{
		submitUC:    submitUC,
		getJobUC:    getJobUC,
		getResultUC: getResultUC,
		logger:      logger,
	}
}

// Submit handles POST /images
func (h *ImageHandler) Submit(c *gin.Context) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": domain.ErrUploadTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image file in form field \"file\""})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer f.Close()

	body, err := io.ReadAll(f)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	resp, err := h.submitUC.Execute(c.Request.Context(), &domain.SubmitRequest{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        body,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidContentType), errors.Is(err, domain.ErrEmptyUpload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrQueueUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		default:
			h.logger.Error("Submit job failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetByID handles GET /images/:id
func (h *ImageHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	job, err := h.getJobUC.Execute(c.Request.Context(), id)
	if err != nil {
		h.writeLookupError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, domain.StatusResponse{Status: job.Status, Count: job.Count})
}

// GetResult handles GET /images/:id/result.jpg
func (h *ImageHandler) GetResult(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	path, err := h.getResultUC.Execute(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrResultNotReady) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Result image not found"})
			return
		}
		h.writeLookupError(c, id, err)
		return
	}

	c.File(path)
}

func (h *ImageHandler) writeLookupError(c *gin.Context, id uuid.UUID, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	h.logger.Error("Get job failed", zap.Error(err), zap.String("job_id", id.String()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return uuid.Nil, false
	}
	return id, true
}
