// Package detector adapts vehicle detection backends behind a single interface.
// Implementations are selected at start-up; callers never know which one they hold.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

// Detector counts vehicles in the image at imagePath and writes an annotated
// copy to outputPath. Failures wrap domain.ErrDetectionFailed.
type Detector interface {
	Detect(ctx context.Context, imagePath, outputPath string) (*domain.Detection, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, imagePath, outputPath string) (*domain.Detection, error)

func (f Func) Detect(ctx context.Context, imagePath, outputPath string) (*domain.Detection, error) {
	return f(ctx, imagePath, outputPath)
}

// WithTimeout bounds each Detect call by d. A zero or negative d returns det
// unchanged, so detection may run for as long as the backend takes.
func WithTimeout(d time.Duration, det Detector) Detector {
	if d <= 0 {
		return det
	}
	return &timeoutDetector{timeout: d, next: det}
}

type timeoutDetector struct {
	timeout time.Duration
	next    Detector
}

type detectResult struct {
	det *domain.Detection
	err error
}

func (t *timeoutDetector) Detect(ctx context.Context, imagePath, outputPath string) (*domain.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// Buffered so the inner call can finish after we give up on it.
	done := make(chan detectResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- detectResult{err: fmt.Errorf("%w: panic: %v", domain.ErrDetectionFailed, r)}
			}
		}()
		det, err := t.next.Detect(ctx, imagePath, outputPath)
		done <- detectResult{det: det, err: err}
	}()

	select {
	case r := <-done:
		return r.det, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: timed out after %s", domain.ErrDetectionFailed, t.timeout)
	}
}
