package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InFlightJobs tracks cancel funcs for jobs executing in this process.
type InFlightJobs struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewInFlightJobs creates an empty registry.
func NewInFlightJobs() *InFlightJobs {
	return &InFlightJobs{cancels: map[uuid.UUID]context.CancelFunc{}}
}

func (r *InFlightJobs) register(id uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
}

func (r *InFlightJobs) unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.cancels, id)
	r.mu.Unlock()
}

// Cancel interrupts the job if it runs here and reports whether it did.
func (r *InFlightJobs) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Len returns the number of jobs currently executing.
func (r *InFlightJobs) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
