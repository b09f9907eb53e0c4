package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/metrics"
	"github.com/Harsh-BH/vehicle-counter/internal/usecase"
)

// WorkerPool manages a fixed-size pool of goroutines that run detection tasks.
type WorkerPool struct {
	size      int
	tasks     <-chan *domain.TaskMessage
	processUC *usecase.ProcessJobUsecase
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, tasks <-chan *domain.TaskMessage, processUC *usecase.ProcessJobUsecase, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:      size,
		tasks:     tasks,
		processUC: processUC,
		logger:    logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current task and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.tasks:
			if !ok {
				p.logger.Debug("Task channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle runs one task to completion. Shutdown does not interrupt a task in
// flight, so the job still reaches a terminal state.
func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.TaskMessage) {
	task := msg.Task
	logger := p.logger.With(zap.Int("worker_id", id), zap.String("job_id", task.JobID.String()))

	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker panic recovered", zap.Any("panic", r))
			if err := msg.Nack(false); err != nil {
				logger.Error("Failed to NACK message", zap.Error(err))
			}
		}
	}()

	logger.Info("Worker processing task")

	isDuplicate, err := p.processUC.Execute(context.WithoutCancel(ctx), task)
	if err != nil {
		logger.Error("Task processing failed", zap.Error(err))
		// Requeuing a failed store write would loop; the message goes to the DLQ
		// and the sweeper eventually fails the job.
		if nackErr := msg.Nack(false); nackErr != nil {
			logger.Error("Failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	if isDuplicate {
		logger.Debug("Duplicate task skipped")
	}
	if ackErr := msg.Ack(); ackErr != nil {
		logger.Error("Failed to ACK message", zap.Error(ackErr))
	}
}
