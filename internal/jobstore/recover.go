package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/backmassage/clipmaster/internal/jobs"
)

// RecoveryReport summarizes a Load call.
type RecoveryReport struct {
	Loaded    int
	Recovered []string // Jobs moved to RECOVERY_REQUIRED.
	Skipped   []string // Rows that could not be restored.
}

// Load restores every stored job into reg and applies startup recovery:
// jobs persisted as RUNNING or PAUSED become RECOVERY_REQUIRED and are
// saved back. Unreadable rows are skipped with a warning.
func Load(ctx context.Context, store Store, reg *Registry, log Logger) (RecoveryReport, error) {
	var rep RecoveryReport
	snaps, err := store.LoadAll(ctx)
	var corrupt *CorruptRowError
	switch {
	case errors.As(err, &corrupt):
		rep.Skipped = append(rep.Skipped, corrupt.IDs...)
		log.Warn("Skipping %d unreadable job record(s): %v", len(corrupt.IDs), corrupt.IDs)
	case err != nil:
		return rep, err
	}

	for _, s := range snaps {
		j, err := jobs.Restore(s)
		if err != nil {
			rep.Skipped = append(rep.Skipped, s.ID)
			log.Warn("Skipping job record %s: %v", s.ID, err)
			continue
		}
		if j.Recover() {
			rep.Recovered = append(rep.Recovered, j.ID)
			log.Warn("Job %s was interrupted; marked %s", j.ID, jobs.JobRecoveryRequired)
			if err := store.Save(ctx, j.Snapshot()); err != nil {
				return rep, fmt.Errorf("persist recovered job %s: %w", j.ID, err)
			}
		}
		if err := reg.Add(j); err != nil {
			rep.Skipped = append(rep.Skipped, s.ID)
			log.Warn("Skipping job record %s: %v", s.ID, err)
			continue
		}
		rep.Loaded++
	}
	if rep.Loaded > 0 {
		log.Info("Loaded %d job(s) from state", rep.Loaded)
	}
	return rep, nil
}
