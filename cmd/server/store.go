package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/config"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
	"github.com/Harsh-BH/vehicle-counter/internal/repository/memory"
	"github.com/Harsh-BH/vehicle-counter/internal/repository/postgres"
	"github.com/Harsh-BH/vehicle-counter/internal/repository/sqlite"
)

// openStore connects the configured job store and applies its schema.
// The returned func releases the connection.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (repository.JobRepository, func(), error) {
	switch cfg.Backend {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping PostgreSQL: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Connected to PostgreSQL")
		return postgres.NewPostgresJobRepository(pool, logger), pool.Close, nil

	case config.StoreSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, nil, err
		}
		logger.Info("Opened SQLite store", zap.String("path", cfg.SQLitePath))
		return repo, func() { repo.Close() }, nil

	default:
		logger.Warn("Using in-memory job store; jobs are lost on restart")
		return memory.NewJobRepository(), func() {}, nil
	}
}
