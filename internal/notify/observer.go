package notify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

// Observer is a registered receiver of job events.
type Observer struct {
	id    uint64
	jobID uuid.UUID

	mu     sync.Mutex
	closed bool
	ch     chan domain.Event
	done   chan struct{}
}

func newObserver(id uint64, buffer int) *Observer {
	return &Observer{
		id:   id,
		ch:   make(chan domain.Event, buffer),
		done: make(chan struct{}),
	}
}

// ID identifies the observer within its hub.
func (o *Observer) ID() uint64 { return o.id }

// C delivers events in broadcast order. It is closed when the observer is removed.
func (o *Observer) C() <-chan domain.Event { return o.ch }

// Done is closed when the observer is removed from the hub.
func (o *Observer) Done() <-chan struct{} { return o.done }

func (o *Observer) wants(e domain.Event) bool {
	return o.jobID == uuid.Nil || o.jobID == e.JobID
}

// send never blocks; false means the event was not delivered.
func (o *Observer) send(e domain.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- e:
		return true
	default:
		return false
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
	close(o.done)
}
