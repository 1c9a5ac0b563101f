package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the cancel function of every in-flight task pipeline. It is
// the only cross-task shared mutable state besides the task table itself, so
// it is an explicitly lock-guarded store rather than package globals.
type Registry struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{cancels: make(map[uuid.UUID]context.CancelFunc)}
}

func (r *Registry) Add(taskID uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[taskID] = cancel
}

func (r *Registry) Remove(taskID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, taskID)
}

// Cancel signals the task's pipeline, if one is in flight, and reports
// whether there was one. The pipeline stops at its next checkpoint; an
// already-dispatched external call may finish and be discarded.
func (r *Registry) Cancel(taskID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[taskID]
	if ok {
		cancel()
		delete(r.cancels, taskID)
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
