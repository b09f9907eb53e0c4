package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a detection job.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

// IsTerminal returns true if the status represents a final state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// IsValid checks if the status is one of the known states.
func (s JobStatus) IsValid() bool {
	return s == StatusProcessing || s.IsTerminal()
}

// Job represents a vehicle detection job throughout its lifecycle.
type Job struct {
	JobID      uuid.UUID `json:"job_id"`
	Status     JobStatus `json:"status"`
	Count      int       `json:"count"`
	UploadPath string    `json:"-"`
	ResultPath string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewJob returns a job in the initial processing state.
func NewJob(id uuid.UUID, uploadPath string, now time.Time) *Job {
	return &Job{
		JobID:      id,
		Status:     StatusProcessing,
		UploadPath: uploadPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a copy that shares no memory with j.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

// Transition describes a move into a terminal state.
// Count and ResultPath are only used when To is StatusDone.
type Transition struct {
	To         JobStatus
	Count      int
	ResultPath string
}

// Done returns the success transition.
func Done(count int, resultPath string) Transition {
	return Transition{To: StatusDone, Count: count, ResultPath: resultPath}
}

// Failed returns the failure transition. Count keeps its prior value.
func Failed() Transition {
	return Transition{To: StatusError}
}

// Apply mutates j according to t. Terminal states accept no further transitions.
func (j *Job) Apply(t Transition, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, t.To)
	}
	switch t.To {
	case StatusDone:
		if t.Count < 0 {
			return fmt.Errorf("%w: negative count %d", ErrInvalidTransition, t.Count)
		}
		j.Count = t.Count
		j.ResultPath = t.ResultPath
	case StatusError:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, t.To)
	}
	j.Status = t.To
	j.UpdatedAt = now
	return nil
}

// Event is the notification broadcast to live observers on every state change.
type Event struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
	Count  int       `json:"count"`
}

// EventFor builds the broadcast copy of a job's current state.
func EventFor(j *Job) Event {
	return Event{JobID: j.JobID, Status: j.Status, Count: j.Count}
}

// SubmitRequest is an uploaded image handed to the submission use case.
type SubmitRequest struct {
	Filename    string
	ContentType string
	Body        []byte
}

// SubmitResponse is returned after a successful submission.
type SubmitResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

// StatusResponse is the Query Interface view of a job.
type StatusResponse struct {
	Status JobStatus `json:"status"`
	Count  int       `json:"count"`
}
