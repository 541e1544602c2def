package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the cancel function of every in-flight job so a cancel
// request can abort the poll wait instead of letting it run to the
// deadline.
type Registry struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{cancels: make(map[uuid.UUID]context.CancelFunc)}
}

func (r *Registry) Register(jobID uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancels[jobID] = cancel
}

func (r *Registry) Deregister(jobID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.cancels, jobID)
}

// Cancel aborts a running job. Returns false when the job is not
// currently running, either because it never started or already finished.
func (r *Registry) Cancel(jobID uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	if ok {
		delete(r.cancels, jobID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}
