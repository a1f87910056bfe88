// Package scheduler provides single-flight FIFO admission control for jobs.
// At most Ceiling jobs hold the execution slot at once (default 1), and a
// job is admitted only when it reaches the head of the queue. Clip counters
// are tracked separately against the same ceiling.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultCeiling is the default concurrency ceiling for jobs and clips.
const DefaultCeiling = 1

// ErrClipCeiling is returned by MarkClipStarted when the ceiling is reached.
var ErrClipCeiling = errors.New("clip concurrency ceiling reached")

// Logger is the minimal logging interface the scheduler needs.
type Logger interface {
	Warn(string, ...interface{})
}

// Snapshot is a point-in-time view of scheduler state.
type Snapshot struct {
	Queue        []string
	Executing    []string
	RunningClips int
	Ceiling      int
	Paused       bool
}

// Scheduler is goroutine-safe; one mutex serializes all state.
type Scheduler struct {
	mu           sync.Mutex
	ceiling      int
	queue        []string
	executing    map[string]bool
	paused       bool
	runningClips int
	log          Logger
}

// New returns a scheduler with the given ceiling. Values below 1 use
// DefaultCeiling.
func New(ceiling int, log Logger) *Scheduler {
	if ceiling < 1 {
		ceiling = DefaultCeiling
	}
	return &Scheduler{
		ceiling:   ceiling,
		executing: make(map[string]bool),
		log:       log,
	}
}

// EnqueueJob appends id unless it is already queued or executing.
// It reports whether id was added.
func (s *Scheduler) EnqueueJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executing[id] || s.indexLocked(id) >= 0 {
		return false
	}
	s.queue = append(s.queue, id)
	return true
}

// AcquireExecution admits id if the scheduler is not paused, a slot is
// free, and id is at the head of the queue. On success id leaves the queue.
func (s *Scheduler) AcquireExecution(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || len(s.executing) >= s.ceiling {
		return false
	}
	if len(s.queue) == 0 || s.queue[0] != id {
		return false
	}
	s.queue = s.queue[1:]
	s.executing[id] = true
	return true
}

// ReleaseExecution frees the slot held by id. A release by a job that
// does not hold a slot is logged and ignored.
func (s *Scheduler) ReleaseExecution(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.executing[id] {
		if s.log != nil {
			s.log.Warn("Scheduler: ignoring release from non-holder %s", id)
		}
		return
	}
	delete(s.executing, id)
}

// RemoveFromQueue drops id from the queue. It reports whether id was queued.
func (s *Scheduler) RemoveFromQueue(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
	return true
}

// QueuePosition returns id's zero-based queue position, or -1.
func (s *Scheduler) QueuePosition(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id)
}

// IsExecuting reports whether id currently holds a slot.
func (s *Scheduler) IsExecuting(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executing[id]
}

// Pause blocks new admissions. Jobs already executing are unaffected.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume allows admissions again.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// MarkClipStarted increments the running-clip counter.
func (s *Scheduler) MarkClipStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningClips >= s.ceiling {
		return ErrClipCeiling
	}
	s.runningClips++
	return nil
}

// MarkClipCompleted decrements the running-clip counter.
func (s *Scheduler) MarkClipCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningClips > 0 {
		s.runningClips--
	}
}

// Snapshot returns a copy of the current state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Queue:        append([]string(nil), s.queue...),
		RunningClips: s.runningClips,
		Ceiling:      s.ceiling,
		Paused:       s.paused,
	}
	for id := range s.executing {
		snap.Executing = append(snap.Executing, id)
	}
	return snap
}

// WaitForExecution polls AcquireExecution every poll interval until it
// succeeds or ctx is done.
func (s *Scheduler) WaitForExecution(ctx context.Context, id string, poll time.Duration) error {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if s.AcquireExecution(id) {
		return nil
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
			if s.AcquireExecution(id) {
				return nil
			}
		}
	}
}

func (s *Scheduler) indexLocked(id string) int {
	for i, q := range s.queue {
		if q == id {
			return i
		}
	}
	return -1
}
