package usecase

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vehicle-counter/internal/detector"
	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

func TestProcessJob_SuccessEndToEnd(t *testing.T) {
	h := newHarness(t)
	task := h.submitPNG(t)

	isDup, err := h.process(stubDetector(3)).Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isDup {
		t.Fatal("expected not duplicate")
	}

	job, err := NewGetJobUsecase(h.repo, zapNop()).Execute(context.Background(), task.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusDone || job.Count != 3 {
		t.Errorf("expected done/3, got %s/%d", job.Status, job.Count)
	}

	path, err := NewGetResultUsecase(h.repo, h.files, zapNop()).Execute(context.Background(), task.JobID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("result missing: %v", err)
	}

	events := h.hub.Events()
	want := []domain.Event{
		{JobID: task.JobID, Status: domain.StatusProcessing},
		{JobID: task.JobID, Status: domain.StatusDone, Count: 3},
	}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("expected %+v, got %+v", want, events)
	}
	if len(h.idem.ReleaseCalls) != 1 {
		t.Errorf("expected lock release, got %d calls", len(h.idem.ReleaseCalls))
	}
}

func TestProcessJob_FailureEndToEnd(t *testing.T) {
	h := newHarness(t)
	task := h.submitPNG(t)

	if _, err := h.process(failingDetector()).Execute(context.Background(), task); err != nil {
		t.Fatalf("detection failures must not be returned, got %v", err)
	}

	job, _ := h.repo.GetByID(context.Background(), task.JobID)
	if job.Status != domain.StatusError || job.Count != 0 {
		t.Errorf("expected error/0, got %s/%d", job.Status, job.Count)
	}

	_, err := NewGetResultUsecase(h.repo, h.files, zapNop()).Execute(context.Background(), task.JobID)
	if !errors.Is(err, domain.ErrResultNotReady) {
		t.Errorf("expected ErrResultNotReady, got %v", err)
	}
}

func TestProcessJob_PanicBecomesError(t *testing.T) {
	h := newHarness(t)
	task := h.submitPNG(t)

	boom := detector.Func(func(context.Context, string, string) (*domain.Detection, error) {
		panic("model crashed")
	})
	if _, err := h.process(boom).Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job, _ := h.repo.GetByID(context.Background(), task.JobID)
	if job.Status != domain.StatusError {
		t.Errorf("expected error status, got %s", job.Status)
	}
}

func TestProcessJob_MissingArtifactBecomesError(t *testing.T) {
	h := newHarness(t)
	task := h.submitPNG(t)

	noFile := detector.Func(func(_ context.Context, _, out string) (*domain.Detection, error) {
		return &domain.Detection{Count: 2, AnnotatedPath: out}, nil
	})
	if _, err := h.process(noFile).Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job, _ := h.repo.GetByID(context.Background(), task.JobID)
	if job.Status != domain.StatusError || job.Count != 0 {
		t.Errorf("expected error/0, got %s/%d", job.Status, job.Count)
	}
}

func TestProcessJob_DuplicateSkipped(t *testing.T) {
	h := newHarness(t)
	task := h.submitPNG(t)
	h.idem.AcquireLockFn = func(context.Context, uuid.UUID) (bool, error) { return false, nil }

	called := false
	det := detector.Func(func(context.Context, string, string) (*domain.Detection, error) {
		called = true
		return nil, nil
	})

	isDup, err := h.process(det).Execute(context.Background(), task)
	if err != nil || !isDup {
		t.Fatalf("expected duplicate, got %v, %v", isDup, err)
	}
	if called {
		t.Error("detector must not run for a duplicate")
	}
}

func TestProcessJob_TerminalJobNotReprocessed(t *testing.T) {
	h := newHarness(t)
	task := h.submitPNG(t)

	if _, err := h.process(stubDetector(3)).Execute(context.Background(), task); err != nil {
		t.Fatalf("first run: %v", err)
	}
	isDup, err := h.process(failingDetector()).Execute(context.Background(), task)
	if err != nil || !isDup {
		t.Fatalf("expected skip, got %v, %v", isDup, err)
	}

	job, _ := h.repo.GetByID(context.Background(), task.JobID)
	if job.Status != domain.StatusDone || job.Count != 3 {
		t.Errorf("terminal state changed: %s/%d", job.Status, job.Count)
	}
	if n := len(h.hub.Events()); n != 2 {
		t.Errorf("expected exactly two events, got %d", n)
	}
}

func TestProcessJob_UnknownJobDropped(t *testing.T) {
	h := newHarness(t)
	task := &domain.Task{JobID: uuid.New(), UploadPath: "u", ResultPath: "r"}

	isDup, err := h.process(stubDetector(1)).Execute(context.Background(), task)
	if err != nil || isDup {
		t.Fatalf("expected silent drop, got %v, %v", isDup, err)
	}
}

func TestProcessJob_StoreFailureReturned(t *testing.T) {
	h := newHarness(t)
	task := h.submitPNG(t)

	storeErr := errors.New("disk full")
	h.lifecycle.repo = failingUpdates{JobRepository: h.repo, err: storeErr}

	_, err := h.process(stubDetector(3)).Execute(context.Background(), task)
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if n := len(h.hub.Events()); n != 1 {
		t.Errorf("no broadcast may follow a failed store write, got %d events", n)
	}
}

func TestLifecycle_StoreWrittenBeforeBroadcast(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		task := h.submitPNG(t)
		if _, err := h.process(stubDetector(i)).Execute(context.Background(), task); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	h.hub.mu.Lock()
	defer h.hub.mu.Unlock()
	for i, e := range h.hub.events {
		if h.hub.stored[i] != e.Status {
			t.Errorf("event %d (%s) broadcast while store held %q", i, e.Status, h.hub.stored[i])
		}
	}
}

type failingUpdates struct {
	repository.JobRepository
	err error
}

func (f failingUpdates) Update(context.Context, uuid.UUID, repository.MutateFunc) (*domain.Job, error) {
	return nil, f.err
}
