// Package jobstore holds the in-memory job registry, the persistence port
// the orchestrator saves through, a SQLite implementation of that port,
// and startup recovery of jobs interrupted by a previous process.
package jobstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/backmassage/clipmaster/internal/jobs"
)

// Sentinel errors returned by Registry.
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("job id already registered")
)

// Registry is the in-memory set of known jobs in creation order. Jobs are
// removed only by an explicit Remove.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*jobs.Job
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*jobs.Job)}
}

// Add registers j. Ids are never reused.
func (r *Registry) Add(j *jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, j.ID)
	}
	r.jobs[j.ID] = j
	r.order = append(r.order, j.ID)
	return nil
}

// Get returns the job with id.
func (r *Registry) Get(id string) (*jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

// Remove deletes the job with id from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(r.jobs, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns all jobs in creation order.
func (r *Registry) List() []*jobs.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*jobs.Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id])
	}
	return out
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
