package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyExists is returned when a job ID collides with an existing record.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrInvalidTransition is returned when a status change would leave a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrInvalidContentType is returned when the upload is not an image.
	ErrInvalidContentType = errors.New("file must be an image")

	// ErrEmptyUpload is returned when the upload has no content.
	ErrEmptyUpload = errors.New("uploaded file is empty")

	// ErrUploadTooLarge is returned when the upload exceeds the configured size limit.
	ErrUploadTooLarge = errors.New("uploaded file exceeds maximum size")

	// ErrStorage is returned when an upload or result artifact cannot be read or written.
	ErrStorage = errors.New("artifact storage failure")

	// ErrDetectionFailed is returned when the detector fails or returns invalid output.
	ErrDetectionFailed = errors.New("vehicle detection failed")

	// ErrResultNotReady is returned when a job has no annotated result to serve.
	ErrResultNotReady = errors.New("result image not found")

	// ErrQueueUnavailable is returned when a detection task cannot be handed off.
	ErrQueueUnavailable = errors.New("failed to enqueue detection task")
)
