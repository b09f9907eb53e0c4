package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	mockrepo "github.com/Harsh-BH/vehicle-counter/internal/repository/mock"
	"github.com/Harsh-BH/vehicle-counter/internal/repository/sqlite"
)

func TestSubmitJob_Success(t *testing.T) {
	h := newHarness(t)

	resp, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		Filename:    "street.png",
		ContentType: "image/png",
		Body:        pngBytes(t),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.JobID == uuid.Nil {
		t.Fatal("expected non-nil job ID")
	}
	if resp.Status != domain.StatusProcessing {
		t.Errorf("expected status processing, got %s", resp.Status)
	}

	job, err := h.repo.GetByID(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Status != domain.StatusProcessing || job.Count != 0 {
		t.Errorf("unexpected stored job: %+v", job)
	}
	if _, err := os.Stat(job.UploadPath); err != nil {
		t.Errorf("upload not written: %v", err)
	}

	events := h.hub.Events()
	if len(events) != 1 || events[0] != (domain.Event{JobID: resp.JobID, Status: domain.StatusProcessing}) {
		t.Errorf("expected one processing event, got %+v", events)
	}

	tasks := h.pub.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 published task, got %d", len(tasks))
	}
	if tasks[0].UploadPath != job.UploadPath || tasks[0].ResultPath == "" {
		t.Errorf("unexpected task: %+v", tasks[0])
	}
}

func TestSubmitJob_Validation(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        func(t *testing.T) []byte
		want        error
	}{
		{"empty body", "image/png", func(*testing.T) []byte { return nil }, domain.ErrEmptyUpload},
		{"declared text", "text/plain", pngBytes, domain.ErrInvalidContentType},
		{"missing content type", "", pngBytes, domain.ErrInvalidContentType},
		{"sniffed text", "image/jpeg", func(*testing.T) []byte { return []byte("just some text") }, domain.ErrInvalidContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
				Filename:    "x.png",
				ContentType: tt.contentType,
				Body:        tt.body(t),
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if n := len(h.hub.Events()); n != 0 {
				t.Errorf("expected no broadcast, got %d events", n)
			}
			if n := len(h.pub.Tasks()); n != 0 {
				t.Errorf("expected nothing queued, got %d", n)
			}
		})
	}
}

func TestSubmitJob_StorageFailure(t *testing.T) {
	h := newHarness(t)
	h.submit.uploads = failingUploads{}

	_, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		Filename:    "a.png",
		ContentType: "image/png",
		Body:        pngBytes(t),
	})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if n := len(h.hub.Events()); n != 0 {
		t.Errorf("expected no broadcast before job creation, got %d", n)
	}
}

func TestSubmitJob_QueueFailureMarksJobError(t *testing.T) {
	h := newHarness(t)
	h.pub.PublishFn = func(context.Context, *domain.Task) error {
		return errors.New("broker down")
	}

	_, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		Filename:    "a.png",
		ContentType: "image/png",
		Body:        pngBytes(t),
	})
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}

	events := h.hub.Events()
	if len(events) != 2 {
		t.Fatalf("expected processing and error events, got %+v", events)
	}
	if events[0].Status != domain.StatusProcessing || events[1].Status != domain.StatusError {
		t.Errorf("unexpected event order: %+v", events)
	}

	job, err := h.repo.GetByID(context.Background(), events[0].JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusError {
		t.Errorf("expected error status, got %s", job.Status)
	}
}

func TestSubmitJob_CreateFailureRemovesUpload(t *testing.T) {
	h := newHarness(t)
	repo := mockrepo.NewMockJobRepository()
	repo.CreateFunc = func(context.Context, *domain.Job) error {
		return errors.New("disk full")
	}
	h.submit.lifecycle = NewLifecycle(repo, h.hub, zapNop())

	_, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		Filename:    "a.png",
		ContentType: "image/png",
		Body:        pngBytes(t),
	})
	if err == nil {
		t.Fatal("expected create failure")
	}

	entries, err := os.ReadDir(h.uploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no uploads left behind, found %d", len(entries))
	}
	if n := len(h.pub.Tasks()); n != 0 {
		t.Errorf("expected nothing queued, got %d", n)
	}
}

func TestSubmitJob_ClientGoneAfterCreateStillFailsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "jobs.db"), zapNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := newHarness(t)
	h.hub.repo = repo
	h.submit.lifecycle = NewLifecycle(repo, h.hub, zapNop())

	var publishCtxErr error
	h.pub.PublishFn = func(pctx context.Context, _ *domain.Task) error {
		// The client hangs up while the task is being enqueued.
		cancel()
		publishCtxErr = pctx.Err()
		return context.Canceled
	}

	_, err = h.submit.Execute(ctx, &domain.SubmitRequest{
		Filename:    "a.png",
		ContentType: "image/png",
		Body:        pngBytes(t),
	})
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
	if publishCtxErr != nil {
		t.Errorf("publish must not see the request cancellation, got %v", publishCtxErr)
	}

	events := h.hub.Events()
	if len(events) != 2 || events[1].Status != domain.StatusError {
		t.Fatalf("expected processing then error events, got %+v", events)
	}
	job, err := repo.GetByID(context.Background(), events[0].JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusError {
		t.Errorf("expected error status in sqlite, got %s", job.Status)
	}
}

type failingUploads struct{}

func (failingUploads) SaveUpload(uuid.UUID, string, []byte) (string, error) {
	return "", domain.ErrStorage
}

func (failingUploads) RemoveUpload(string) error { return nil }

func (failingUploads) ResultPath(uuid.UUID, string) string { return "" }
