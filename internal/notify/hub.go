// Package notify fans job events out to live observers.
//
// Delivery is best effort: an event is offered to each observer's buffered
// channel without blocking, and an observer that cannot take it is removed.
// There is no replay for observers that connect later.
package notify

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/metrics"
)

// DefaultBuffer is the per-observer channel capacity used when none is configured.
const DefaultBuffer = 64

// Hub owns the observer registry. All methods are safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	observers map[uint64]*Observer
	nextID    uint64
	buffer    int
	closed    bool
	logger    *zap.Logger
}

// NewHub creates a hub whose observers buffer up to buffer events each.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		observers: make(map[uint64]*Observer),
		buffer:    buffer,
		logger:    logger,
	}
}

// Option configures an observer at registration.
type Option func(*Observer)

// WithJobFilter restricts an observer to events for a single job.
func WithJobFilter(jobID uuid.UUID) Option {
	return func(o *Observer) { o.jobID = jobID }
}

// Register adds a live observer. Registering on a closed hub returns an
// observer that is already closed.
func (h *Hub) Register(opts ...Option) *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	o := newObserver(h.nextID, h.buffer)
	for _, opt := range opts {
		opt(o)
	}

	if h.closed {
		o.close()
		return o
	}

	h.observers[o.id] = o
	metrics.ObserversConnected.Inc()
	h.logger.Debug("observer registered", zap.Uint64("observer_id", o.id), zap.Int("observers", len(h.observers)))
	return o
}

// Unregister removes and closes the observer. Calling it more than once, or
// with an observer the hub no longer holds, has no effect.
func (h *Hub) Unregister(o *Observer) {
	h.remove(o)
}

func (h *Hub) remove(o *Observer) bool {
	if o == nil {
		return false
	}

	h.mu.Lock()
	_, ok := h.observers[o.id]
	if ok {
		delete(h.observers, o.id)
	}
	h.mu.Unlock()

	o.close()
	if ok {
		metrics.ObserversConnected.Dec()
	}
	return ok
}

// Broadcast offers event to every registered observer. It never blocks and
// never fails; observers that cannot accept the event are removed.
func (h *Hub) Broadcast(event domain.Event) {
	h.mu.RLock()
	snapshot := make([]*Observer, 0, len(h.observers))
	for _, o := range h.observers {
		snapshot = append(snapshot, o)
	}
	h.mu.RUnlock()

	for _, o := range snapshot {
		if !o.wants(event) {
			continue
		}
		if o.send(event) {
			continue
		}
		if h.remove(o) {
			metrics.BroadcastDropped.Inc()
			h.logger.Warn("dropping observer after failed delivery",
				zap.Uint64("observer_id", o.id),
				zap.String("job_id", event.JobID.String()),
			)
		}
	}
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close removes and closes every observer. Later registrations are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	observers := h.observers
	h.observers = make(map[uint64]*Observer)
	h.mu.Unlock()

	for _, o := range observers {
		o.close()
	}
	metrics.ObserversConnected.Sub(float64(len(observers)))
}
