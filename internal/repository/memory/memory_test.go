package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vehicle-counter/internal/repository"
	"github.com/Harsh-BH/vehicle-counter/internal/repository/repotest"
)

func TestJobRepository(t *testing.T) {
	repotest.RunJobRepository(t, func(*testing.T) repository.JobRepository {
		return NewJobRepository()
	})
}

func TestIdempotency_AcquireTwice(t *testing.T) {
	store := NewIdempotencyStore()
	id := uuid.New()

	ok, err := store.AcquireLock(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %v, %v", ok, err)
	}
	ok, err = store.AcquireLock(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second acquire to report a duplicate")
	}
}

func TestIdempotency_ReleasedLockExpires(t *testing.T) {
	now := time.Now()
	store := &memIdempotency{
		locks: make(map[uuid.UUID]time.Time),
		now:   func() time.Time { return now },
	}
	id := uuid.New()

	_, _ = store.AcquireLock(context.Background(), id)
	_ = store.ReleaseLock(context.Background(), id)

	// Still deduplicated inside the TTL window.
	if ok, _ := store.AcquireLock(context.Background(), id); ok {
		t.Fatal("expected duplicate inside TTL window")
	}

	now = now.Add(lockTTL + time.Second)
	if ok, _ := store.AcquireLock(context.Background(), id); !ok {
		t.Error("expected lock to be acquirable after TTL")
	}
}
