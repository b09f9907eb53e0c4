package usecase

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/detector"
	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	mockqueue "github.com/Harsh-BH/vehicle-counter/internal/queue/mock"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
	"github.com/Harsh-BH/vehicle-counter/internal/repository/memory"
	mockrepo "github.com/Harsh-BH/vehicle-counter/internal/repository/mock"
	"github.com/Harsh-BH/vehicle-counter/internal/storage"
)

// recorder is a Broadcaster that remembers every event and, at the moment of
// each broadcast, what the store held for that job.
type recorder struct {
	mu     sync.Mutex
	repo   repository.JobRepository
	events []domain.Event
	stored []domain.JobStatus
}

func (r *recorder) Broadcast(e domain.Event) {
	var status domain.JobStatus
	if job, err := r.repo.GetByID(context.Background(), e.JobID); err == nil {
		status = job.Status
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	r.stored = append(r.stored, status)
}

func (r *recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

type harness struct {
	repo      repository.JobRepository
	hub       *recorder
	files     *storage.FileStore
	pub       *mockqueue.MockPublisher
	idem      *mockrepo.IdempotencyStore
	uploadDir string
	lifecycle *Lifecycle
	submit    *SubmitJobUsecase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	repo := memory.NewJobRepository()
	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	files, err := storage.NewFileStore(uploadDir, filepath.Join(root, "results"), logger)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	h := &harness{
		repo:      repo,
		hub:       &recorder{repo: repo},
		files:     files,
		pub:       mockqueue.NewMockPublisher(),
		idem:      &mockrepo.IdempotencyStore{},
		uploadDir: uploadDir,
	}
	h.lifecycle = NewLifecycle(repo, h.hub, logger)
	h.submit = NewSubmitJobUsecase(h.lifecycle, files, h.pub, logger)
	return h
}

func (h *harness) process(det detector.Detector) *ProcessJobUsecase {
	return NewProcessJobUsecase(h.repo, h.idem, h.lifecycle, det, h.files, zap.NewNop())
}

// submitPNG submits a valid image and returns the queued task.
func (h *harness) submitPNG(t *testing.T) *domain.Task {
	t.Helper()
	resp, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		Filename:    "street.png",
		ContentType: "image/png",
		Body:        pngBytes(t),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, task := range h.pub.Tasks() {
		if task.JobID == resp.JobID {
			return task
		}
	}
	t.Fatalf("no task published for %s", resp.JobID)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// stubDetector reports count after copying the input, like the mock detector without the delay.
func stubDetector(count int) detector.Detector {
	return detector.Func(func(_ context.Context, in, out string) (*domain.Detection, error) {
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return nil, err
		}
		return &domain.Detection{Count: count, AnnotatedPath: out}, nil
	})
}

func failingDetector() detector.Detector {
	return detector.Func(func(context.Context, string, string) (*domain.Detection, error) {
		return nil, domain.ErrDetectionFailed
	})
}
