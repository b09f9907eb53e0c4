// Package repotest holds a behavioural suite shared by every JobRepository backend.
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

// Factory returns a fresh, empty repository for one subtest.
type Factory func(t *testing.T) repository.JobRepository

// RunJobRepository exercises the JobRepository contract against newRepo.
func RunJobRepository(t *testing.T, newRepo Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newRepo(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newRepo(t)) })
	t.Run("UpdateApplies", func(t *testing.T) { testUpdateApplies(t, newRepo(t)) })
	t.Run("UpdateUnknown", func(t *testing.T) { testUpdateUnknown(t, newRepo(t)) })
	t.Run("UpdateRejectedLeavesState", func(t *testing.T) { testUpdateRejected(t, newRepo(t)) })
	t.Run("ReturnsCopies", func(t *testing.T) { testReturnsCopies(t, newRepo(t)) })
	t.Run("ListByStatus", func(t *testing.T) { testListByStatus(t, newRepo(t)) })
	t.Run("ConcurrentJobs", func(t *testing.T) { testConcurrentJobs(t, newRepo(t)) })
}

func newJob(createdAt time.Time) *domain.Job {
	id := uuid.New()
	return domain.NewJob(id, "uploads/"+id.String()+"_original.jpg", createdAt.UTC().Truncate(time.Millisecond))
}

func testCreateAndGet(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	job := newJob(time.Now())
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, job.JobID, got.JobID)
	require.Equal(t, domain.StatusProcessing, got.Status)
	require.Equal(t, 0, got.Count)
	require.Equal(t, job.UploadPath, got.UploadPath)
	require.Empty(t, got.ResultPath)
	require.True(t, job.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", job.CreatedAt, got.CreatedAt)
}

func testCreateDuplicate(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	job := newJob(time.Now())
	require.NoError(t, repo.Create(ctx, job))

	err := repo.Create(ctx, job)
	require.ErrorIs(t, err, domain.ErrJobAlreadyExists)
}

func testGetUnknown(t *testing.T, repo repository.JobRepository) {
	_, err := repo.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrJobNotFound)
}

func testUpdateApplies(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	job := newJob(time.Now())
	require.NoError(t, repo.Create(ctx, job))

	updated, err := repo.Update(ctx, job.JobID, func(j *domain.Job) error {
		return j.Apply(domain.Done(3, "results/r.jpg"), time.Now().UTC())
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, updated.Status)
	require.Equal(t, 3, updated.Count)

	got, err := repo.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, got.Status)
	require.Equal(t, 3, got.Count)
	require.Equal(t, "results/r.jpg", got.ResultPath)
}

func testUpdateUnknown(t *testing.T, repo repository.JobRepository) {
	called := false
	_, err := repo.Update(context.Background(), uuid.New(), func(*domain.Job) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, domain.ErrJobNotFound)
	require.False(t, called)
}

func testUpdateRejected(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	job := newJob(time.Now())
	require.NoError(t, repo.Create(ctx, job))

	_, err := repo.Update(ctx, job.JobID, func(j *domain.Job) error {
		return j.Apply(domain.Failed(), time.Now().UTC())
	})
	require.NoError(t, err)

	sentinel := errors.New("boom")
	_, err = repo.Update(ctx, job.JobID, func(j *domain.Job) error {
		j.Count = 42
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = repo.Update(ctx, job.JobID, func(j *domain.Job) error {
		return j.Apply(domain.Done(5, "r"), time.Now().UTC())
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := repo.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusError, got.Status)
	require.Equal(t, 0, got.Count)
}

func testReturnsCopies(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	job := newJob(time.Now())
	require.NoError(t, repo.Create(ctx, job))
	job.Status = domain.StatusDone

	got, err := repo.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, got.Status)

	got.Count = 99
	again, err := repo.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, 0, again.Count)
}

func testListByStatus(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	now := time.Now()

	stale := newJob(now.Add(-time.Hour))
	fresh := newJob(now)
	finished := newJob(now.Add(-time.Hour))
	for _, j := range []*domain.Job{stale, fresh, finished} {
		require.NoError(t, repo.Create(ctx, j))
	}
	_, err := repo.Update(ctx, finished.JobID, func(j *domain.Job) error {
		return j.Apply(domain.Failed(), now.UTC())
	})
	require.NoError(t, err)

	jobs, err := repo.ListByStatus(ctx, domain.StatusProcessing, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, stale.JobID, jobs[0].JobID)
}

func testConcurrentJobs(t *testing.T, repo repository.JobRepository) {
	ctx := context.Background()
	const n = 16

	jobs := make([]*domain.Job, n)
	for i := range jobs {
		jobs[i] = newJob(time.Now())
		require.NoError(t, repo.Create(ctx, jobs[i]))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i, job := range jobs {
		wg.Add(2)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, err := repo.Update(ctx, id, func(j *domain.Job) error {
				return j.Apply(domain.Done(i, "r"), time.Now().UTC())
			})
			errs <- err
		}(i, job.JobID)
		go func(id uuid.UUID) {
			defer wg.Done()
			got, err := repo.GetByID(ctx, id)
			if err == nil && got.Status == domain.StatusDone && got.ResultPath != "r" {
				err = errors.New("observed partially applied update")
			}
			errs <- err
		}(job.JobID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i, job := range jobs {
		got, err := repo.GetByID(ctx, job.JobID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusDone, got.Status)
		require.Equal(t, i, got.Count)
	}
}
