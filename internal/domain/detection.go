package domain

import "github.com/google/uuid"

// Box is a bounding box as [x1, y1, x2, y2] pixel coordinates.
type Box [4]int

// Detection is returned by a detector after a successful run.
type Detection struct {
	Count         int
	Boxes         []Box
	AnnotatedPath string
}

// Task is a unit of detection work handed from submission to the worker pool.
type Task struct {
	JobID      uuid.UUID `json:"job_id"`
	UploadPath string    `json:"upload_path"`
	ResultPath string    `json:"result_path"`
}

// TaskMessage wraps a task with delivery acknowledgment callbacks.
type TaskMessage struct {
	Task *Task
	Ack  func() error
	Nack func(requeue bool) error
}
