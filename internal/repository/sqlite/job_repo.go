// Package sqlite implements the job repository on an embedded SQLite database
// (modernc.org/sqlite, no cgo). Connections are serialized through a single
// handle so write transactions never contend for the file lock.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// Ensure JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{`
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	count       INTEGER NOT NULL DEFAULT 0,
	upload_path TEXT NOT NULL DEFAULT '',
	result_path TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at)`,
}

// JobRepository is a SQLite-backed job repository.
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*JobRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA busy_timeout = 5000`, `PRAGMA journal_mode = WAL`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return &JobRepository{db: db, logger: logger}, nil
}

// Migrate creates the jobs table if it does not exist.
func (r *JobRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (r *JobRepository) Close() error {
	return r.db.Close()
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, count, upload_path, result_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.JobID.String(), string(job.Status), job.Count, job.UploadPath, job.ResultPath,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return domain.ErrJobAlreadyExists
		}
		return fmt.Errorf("sqlite: create job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id.String())
	job, err := scanJob(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrJobNotFound
	case err != nil:
		return nil, fmt.Errorf("sqlite: get job by id: %w", err)
	}
	return job, nil
}

func (r *JobRepository) Update(ctx context.Context, id uuid.UUID, mutate repository.MutateFunc) (*domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Error("sqlite rollback failed", zap.String("job_id", id.String()), zap.Error(err))
		}
	}()

	job, err := scanJob(tx.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id.String()))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrJobNotFound
	case err != nil:
		return nil, fmt.Errorf("sqlite: select for update: %w", err)
	}

	if err := mutate(job); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, count = ?, result_path = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), job.Count, job.ResultPath, formatTime(job.UpdatedAt), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Time) ([]*domain.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		selectJob+` WHERE status = ? AND created_at < ? ORDER BY created_at`,
		string(status), formatTime(olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list by status: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const selectJob = `SELECT id, status, count, upload_path, result_path, created_at, updated_at FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		id, status           string
		createdAt, updatedAt string
	)
	if err := s.Scan(&id, &status, &job.Count, &job.UploadPath, &job.ResultPath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if job.JobID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	job.Status = domain.JobStatus(status)
	if job.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
