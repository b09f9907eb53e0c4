package detector

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

// MockCount is the vehicle count reported by the mock detector.
const MockCount = 3

// MockBoxes are the fixed boxes reported by the mock detector.
var MockBoxes = []domain.Box{
	{100, 100, 200, 200},
	{300, 300, 400, 400},
	{500, 500, 600, 600},
}

// Mock simulates detection: it waits, copies the input to the output path and
// reports MockCount vehicles.
type Mock struct {
	delay  time.Duration
	logger *zap.Logger
}

// NewMock creates a mock detector that sleeps for delay before answering.
func NewMock(delay time.Duration, logger *zap.Logger) *Mock {
	return &Mock{delay: delay, logger: logger}
}

func (m *Mock) Detect(ctx context.Context, imagePath, outputPath string) (*domain.Detection, error) {
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrDetectionFailed, ctx.Err())
		}
	}

	if err := copyFile(imagePath, outputPath); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDetectionFailed, err)
	}

	m.logger.Debug("mock detection complete",
		zap.String("input", imagePath),
		zap.String("output", outputPath),
		zap.Int("count", MockCount),
	)

	boxes := make([]domain.Box, len(MockBoxes))
	copy(boxes, MockBoxes)
	return &domain.Detection{Count: MockCount, Boxes: boxes, AnnotatedPath: outputPath}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}
