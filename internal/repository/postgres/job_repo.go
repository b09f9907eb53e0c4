package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// Ensure pgJobRepo implements repository.JobRepository.
var _ repository.JobRepository = (*pgJobRepo)(nil)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          UUID PRIMARY KEY,
	status      TEXT NOT NULL,
	count       INTEGER NOT NULL DEFAULT 0,
	upload_path TEXT NOT NULL DEFAULT '',
	result_path TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at);`

const selectJob = `SELECT id, status, count, upload_path, result_path, created_at, updated_at FROM jobs`

type pgJobRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresJobRepository creates a new PostgreSQL-backed job repository.
func NewPostgresJobRepository(pool *pgxpool.Pool, logger *zap.Logger) repository.JobRepository {
	return &pgJobRepo{pool: pool, logger: logger}
}

// Migrate creates the jobs table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *pgJobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, status, count, upload_path, result_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		job.JobID, job.Status, job.Count, job.UploadPath, job.ResultPath,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrJobAlreadyExists
		}
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

func (r *pgJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: get job by id: %w", err)
	}
	return job, nil
}

// Update locks the row for the duration of the mutation.
func (r *pgJobRepo) Update(ctx context.Context, id uuid.UUID, mutate repository.MutateFunc) (*domain.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Error("postgres rollback failed", zap.String("job_id", id.String()), zap.Error(err))
		}
	}()

	job, err := scanJob(tx.QueryRow(ctx, selectJob+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: select for update: %w", err)
	}

	if err := mutate(job); err != nil {
		return nil, err
	}

	query := `UPDATE jobs SET status = $1, count = $2, result_path = $3, updated_at = $4 WHERE id = $5`
	if _, err := tx.Exec(ctx, query, job.Status, job.Count, job.ResultPath, job.UpdatedAt, id); err != nil {
		return nil, fmt.Errorf("postgres: update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return job, nil
}

func (r *pgJobRepo) ListByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Time) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, selectJob+` WHERE status = $1 AND created_at < $2 ORDER BY created_at`, status, olderThan)
	if err != nil {
		return nil, fmt.Errorf("postgres: list by status: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *pgJobRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	job := &domain.Job{}
	var status string
	err := row.Scan(
		&job.JobID, &status, &job.Count, &job.UploadPath, &job.ResultPath,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}
