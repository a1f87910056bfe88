package jobstore

import (
	"context"

	"github.com/backmassage/clipmaster/internal/jobs"
)

// Store persists job snapshots. It is never invoked implicitly; the
// orchestrator calls it through an explicit state-change hook.
type Store interface {
	Save(ctx context.Context, s jobs.JobSnapshot) error
	LoadAll(ctx context.Context) ([]jobs.JobSnapshot, error)
	Delete(ctx context.Context, id string) error
}

// Logger is the minimal logging interface jobstore needs.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
}

// SaveHook returns a state-change hook that persists the job through store.
// Save errors are logged, not propagated: a failed write must not change
// the outcome of a render.
func SaveHook(store Store, log Logger) func(*jobs.Job) {
	return func(j *jobs.Job) {
		if err := store.Save(context.Background(), j.Snapshot()); err != nil {
			log.Warn("Could not persist job %s: %v", j.ID, err)
		}
	}
}
