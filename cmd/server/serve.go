package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harsh-BH/vehicle-counter/internal/config"
	handler "github.com/Harsh-BH/vehicle-counter/internal/delivery/http"
	"github.com/Harsh-BH/vehicle-counter/internal/detector"
	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/notify"
	"github.com/Harsh-BH/vehicle-counter/internal/pool"
	"github.com/Harsh-BH/vehicle-counter/internal/queue"
	"github.com/Harsh-BH/vehicle-counter/internal/queue/rabbitmq"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
	"github.com/Harsh-BH/vehicle-counter/internal/repository/memory"
	redisrepo "github.com/Harsh-BH/vehicle-counter/internal/repository/redis"
	"github.com/Harsh-BH/vehicle-counter/internal/storage"
	"github.com/Harsh-BH/vehicle-counter/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the detection workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting vehicle counter",
		zap.String("store", cfg.Store.Backend),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("detector", cfg.Detector.Mode),
	)
	gin.SetMode(cfg.Server.GinMode)

	jobRepo, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	checks := map[string]handler.HealthCheck{"store": jobRepo.Ping}

	// Idempotency locks
	var idempotency repository.IdempotencyStore
	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse Redis URL: %w", err)
		}
		rdb := goredis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping Redis: %w", err)
		}
		idempotency = redisrepo.NewRedisIdempotencyStore(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("Connected to Redis")
	} else {
		idempotency = memory.NewIdempotencyStore()
	}

	files, err := storage.NewFileStore(cfg.Storage.UploadDir, cfg.Storage.ResultDir, logger)
	if err != nil {
		return err
	}

	det, err := newDetector(cfg.Detector, logger)
	if err != nil {
		return err
	}

	// Queue: the publisher feeds submissions in, the consumer hands them to the pool.
	tasks := make(chan *domain.TaskMessage)
	var (
		publisher queue.Publisher
		consumer  queue.Consumer
	)
	switch cfg.Queue.Backend {
	case config.QueueRabbitMQ:
		pub, err := rabbitmq.NewPublisher(cfg.Queue.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("connect RabbitMQ publisher: %w", err)
		}
		cons, err := rabbitmq.NewConsumer(cfg.Queue.RabbitMQURL, cfg.Worker.PoolSize, tasks, logger)
		if err != nil {
			pub.Close()
			return fmt.Errorf("connect RabbitMQ consumer: %w", err)
		}
		publisher, consumer = pub, cons
		checks["queue"] = pub.Ping
		logger.Info("Connected to RabbitMQ")
	default:
		mq := queue.NewMemoryQueue(cfg.Queue.Buffer, tasks, logger)
		publisher, consumer = mq, mq
	}
	defer publisher.Close()
	defer consumer.Close()

	hub := notify.NewHub(cfg.Hub.Buffer, logger)
	defer hub.Close()

	lifecycle := usecase.NewLifecycle(jobRepo, hub, logger)
	submitUC := usecase.NewSubmitJobUsecase(lifecycle, files, publisher, logger)
	getJobUC := usecase.NewGetJobUsecase(jobRepo, logger)
	getResultUC := usecase.NewGetResultUsecase(jobRepo, files, logger)
	processUC := usecase.NewProcessJobUsecase(jobRepo, idempotency, lifecycle, det, files, logger)
	sweepUC := usecase.NewSweepUsecase(jobRepo, idempotency, lifecycle, cfg.Sweeper.StaleAfter, logger)

	router := handler.NewRouter(&handler.RouterDeps{
		SubmitUC:        submitUC,
		GetJobUC:        getJobUC,
		GetResultUC:     getResultUC,
		Hub:             hub,
		HealthChecks:    checks,
		Logger:          logger,
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	workers := pool.NewWorkerPool(cfg.Worker.PoolSize, tasks, processUC, logger)
	workers.Start(gctx)

	if cfg.Sweeper.Interval > 0 {
		sched, err := usecase.NewSweepScheduler(gctx, sweepUC, cfg.Sweeper.Interval)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			if err := sched.Shutdown(); err != nil {
				logger.Warn("Sweep scheduler shutdown failed", zap.Error(err))
			}
		}()
	}

	g.Go(func() error {
		return consumer.Start(gctx)
	})

	g.Go(func() error {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown; closing
		// the hub ends their write loops.
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	workers.Stop()
	logger.Info("Vehicle counter stopped")
	return err
}

func newDetector(cfg config.DetectorConfig, logger *zap.Logger) (detector.Detector, error) {
	var det detector.Detector
	switch cfg.Mode {
	case config.DetectorRemote:
		remote, err := detector.NewRemote(cfg.URL, cfg.MinConfidence, &http.Client{}, logger)
		if err != nil {
			return nil, err
		}
		det = remote
	default:
		det = detector.NewMock(cfg.MockDelay, logger)
	}
	return detector.WithTimeout(cfg.Timeout, det), nil
}
