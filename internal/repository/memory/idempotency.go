package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vehicle-counter/internal/repository"
)

var _ repository.IdempotencyStore = (*memIdempotency)(nil)

const lockTTL = 10 * time.Minute

type memIdempotency struct {
	mu    sync.Mutex
	locks map[uuid.UUID]time.Time // job ID -> expiry, zero while held
	now   func() time.Time
}

// NewIdempotencyStore creates a process-local idempotency store. Used when
// no Redis URL is configured.
func NewIdempotencyStore() repository.IdempotencyStore {
	return &memIdempotency{
		locks: make(map[uuid.UUID]time.Time),
		now:   time.Now,
	}
}

func (m *memIdempotency) AcquireLock(_ context.Context, jobID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evict(now)

	if _, held := m.locks[jobID]; held {
		return false, nil
	}
	m.locks[jobID] = time.Time{}
	return true, nil
}

func (m *memIdempotency) ReleaseLock(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[jobID]; held {
		m.locks[jobID] = m.now().Add(lockTTL)
	}
	return nil
}

// evict drops released locks whose TTL has passed. Caller holds m.mu.
func (m *memIdempotency) evict(now time.Time) {
	for id, expiry := range m.locks {
		if !expiry.IsZero() && now.After(expiry) {
			delete(m.locks, id)
		}
	}
}
