package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/clipmaster/internal/engine"
	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/naming"
	"github.com/backmassage/clipmaster/internal/scheduler"
)

// ExecuteJob runs a PENDING, PAUSED or RECOVERY_REQUIRED job to a settled
// state and blocks until then:
//
//  1. resolve the effective configuration id (job binding, then configID,
//     then a synthetic "embedded-<hash>" of the settings);
//  2. validate the engine and parameters;
//  3. wait for scheduler admission;
//  4. transition RUNNING and render every queued clip in order;
//  5. settle the job (COMPLETED, FAILED, PAUSED or CANCELLED).
//
// A nil error means the job settled; its outcome is in its status.
func (o *Orchestrator) ExecuteJob(ctx context.Context, id, configID string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if st := j.Status(); !jobs.CanTransition(st, jobs.JobRunning) {
		return &jobs.TransitionError{Entity: "job", ID: id, From: string(st), To: string(jobs.JobRunning)}
	}
	eng, err := o.engines.Get(j.Engine)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if _, busy := o.active[id]; busy {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	r := &run{}
	o.active[id] = r
	o.mu.Unlock()
	defer o.clearActive(id)

	// --- Configuration binding ---
	if j.ConfigID() == "" {
		if configID == "" {
			configID = "embedded-" + j.EffectiveSettings().Hash()
		}
		if err := j.BindConfig(configID); err != nil {
			return err
		}
	}
	settings := j.EffectiveSettings()
	o.log.Debug(o.opts.Verbose, "Job %s: config %s, preset %s", id, j.ConfigID(), settings.PresetID)

	// --- Pre-flight ---
	v := eng.ValidateJob(j, settings.Params)
	if !v.OK {
		o.log.Error("Job %s cannot run: %s", id, v.Reason)
		if v.Err != nil {
			return fmt.Errorf("job %s: %s: %w", id, v.Reason, v.Err)
		}
		return fmt.Errorf("job %s: %s", id, v.Reason)
	}
	for _, p := range v.SourceProblems {
		o.log.Warn("  %s: %s", p.Path, p.Reason)
	}

	// --- Admission ---
	waitCtx, stopWait := context.WithCancelCause(ctx)
	defer stopWait(nil)
	o.mu.Lock()
	r.stopWait = stopWait
	o.mu.Unlock()

	if o.sched.EnqueueJob(id) {
		if pos := o.sched.QueuePosition(id); pos > 0 {
			o.log.Info("Job %s queued at position %d", id, pos+1)
		}
	}
	if err := o.sched.WaitForExecution(waitCtx, id, o.opts.PollInterval); err != nil {
		o.sched.RemoveFromQueue(id)
		if settleErr := o.finalizeJob(j); settleErr != nil {
			return settleErr
		}
		if o.wasCancelled(j) {
			return nil
		}
		return err
	}
	defer o.sched.ReleaseExecution(id)

	if err := j.Transition(jobs.JobRunning); err != nil {
		return err
	}
	o.log.Info("Job %s running (%d clip(s) queued)", id, len(j.TasksWithStatus(jobs.TaskQueued)))
	o.notify(j)

	o.processJob(ctx, j, eng, settings)
	return o.finalizeJob(j)
}

// processJob is the per-job loop. Output paths are resolved for every
// queued clip up front; then clips run in insertion order with pause and
// cancel re-checked before each one.
func (o *Orchestrator) processJob(ctx context.Context, j *jobs.Job, eng engine.Engine, settings jobs.Settings) {
	for _, t := range j.TasksWithStatus(jobs.TaskQueued) {
		var err error
		if path := t.OutputPath(); path != "" {
			err = o.paths.Claim(t.ID, path)
		} else {
			path, err = o.resolveOutput(j, t, settings)
			if err == nil {
				err = t.SetOutputPath(path)
			}
		}
		if err != nil {
			_ = t.Fail(fmt.Sprintf("cannot resolve output path: %v", err))
			o.paths.Release(t.ID)
			o.log.Error("%s: %v", filepath.Base(t.SourcePath), err)
		}
	}
	o.notify(j)

	queued := j.TasksWithStatus(jobs.TaskQueued)
	for i, t := range queued {
		if stop := o.stopReason(ctx, j); stop != "" {
			o.log.Warn("Job %s: %s; %d clip(s) not started", j.ID, stop, len(queued)-i)
			return
		}
		o.log.Info("[%d/%d] %s", i+1, len(queued), filepath.Base(t.SourcePath))
		o.runTask(ctx, j, eng, settings, t)
		if t.Status() != jobs.TaskCompleted {
			o.paths.Release(t.ID)
		}
		o.notify(j)
	}
}

// stopReason reports why the loop must not start another clip, or "".
func (o *Orchestrator) stopReason(ctx context.Context, j *jobs.Job) string {
	if o.wasCancelled(j) {
		return "cancel requested"
	}
	if j.Status() == jobs.JobPaused {
		return "paused"
	}
	if ctx.Err() != nil {
		return "interrupted"
	}
	return ""
}

func (o *Orchestrator) resolveOutput(j *jobs.Job, t *jobs.Task, settings jobs.Settings) (string, error) {
	base := filepath.Base(t.SourcePath)
	name, err := naming.RenderFilename(settings.Naming.Template, naming.Tokens{
		SourceName: strings.TrimSuffix(base, filepath.Ext(base)),
		Reel:       t.Metadata.Reel,
		Timecode:   t.Metadata.Timecode,
		FrameCount: t.Metadata.FrameCount(),
		Width:      t.Metadata.Width,
		Height:     t.Metadata.Height,
		Codec:      t.Metadata.Codec,
		Preset:     settings.PresetID,
		JobID:      j.ID,
		Time:       j.CreatedAt,
	})
	if err != nil {
		return "", err
	}
	return o.paths.Resolve(t.ID, t.SourcePath, name, settings.Params.Extension(), settings.Naming)
}

// runTask pre-flights, renders and reconciles one clip. Failures are
// recorded on the task and the loop continues.
func (o *Orchestrator) runTask(ctx context.Context, j *jobs.Job, eng engine.Engine, settings jobs.Settings, t *jobs.Task) {
	name := filepath.Base(t.SourcePath)
	if !fileExists(t.SourcePath) {
		_ = t.Fail(reasonSourceMissing + ": " + t.SourcePath)
		o.log.Error("Source not found: %s", t.SourcePath)
		return
	}
	if err := o.acquireClipSlot(ctx); err != nil {
		_ = t.Fail(fmt.Sprintf("%s: %v", reasonInterrupted, context.Cause(ctx)))
		return
	}
	defer o.sched.MarkClipCompleted()

	if err := t.Start(); err != nil {
		o.log.Error("%s: %v", name, err)
		return
	}
	o.log.Info("  -> %s", t.OutputPath())
	o.notify(j)

	clip := engine.Clip{TaskID: t.ID, SourcePath: t.SourcePath, DurationSeconds: t.Metadata.DurationSeconds}
	res := eng.RunClip(ctx, clip, settings.Params, t.OutputPath(), func(p engine.Progress) {
		if p.Percent >= 0 {
			t.UpdateProgress(p.Percent, p.ETASeconds)
		}
		if o.hooks.OnProgress != nil {
			o.hooks.OnProgress(j, t, p)
		}
	})
	o.reconcile(j, t, res)
}

// acquireClipSlot waits for the scheduler's clip ceiling.
func (o *Orchestrator) acquireClipSlot(ctx context.Context) error {
	for {
		err := o.sched.MarkClipStarted()
		if err == nil {
			return nil
		}
		if !errors.Is(err, scheduler.ErrClipCeiling) {
			return err
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(o.opts.PollInterval):
		}
	}
}

// reconcile maps an engine result onto the task. Success is honored only
// when the output exists on disk now.
func (o *Orchestrator) reconcile(j *jobs.Job, t *jobs.Task, res engine.ClipResult) {
	name := filepath.Base(t.SourcePath)
	for _, w := range res.Warnings {
		t.AddWarning(w)
	}
	elapsed := res.EndedAt.Sub(res.StartedAt).Round(time.Second)

	switch {
	case res.Status.Succeeded():
		if !fileExists(t.OutputPath()) {
			_ = t.Fail(reasonOutputMissing + ": " + t.OutputPath())
			o.log.Error("%s: engine reported success but %s is missing", name, t.OutputPath())
			return
		}
		_ = t.Complete()
		if len(res.Warnings) > 0 {
			o.log.Warn("Rendered %s in %s with %d warning(s)", name, elapsed, len(res.Warnings))
			for _, w := range res.Warnings {
				o.log.Warn("  %s", w)
			}
			return
		}
		o.log.Success("Rendered %s in %s", name, elapsed)

	case res.Status == engine.ResultCancelled:
		if o.wasCancelled(j) {
			_ = t.Skip(res.FailureReason)
			o.log.Warn("%s: %s", name, res.FailureReason)
			return
		}
		_ = t.Fail(reasonInterrupted + ": " + res.FailureReason)
		o.log.Error("%s: %s", name, reasonInterrupted)

	default:
		reason := res.FailureReason
		if reason == "" {
			reason = "engine reported failure without a reason"
		}
		_ = t.Fail(reason)
		o.log.Error("%s failed: %s", name, describeReason(reason))
	}
}

// finalizeJob settles the job after the loop (or after admission was
// abandoned). It runs under o.mu so a concurrent CancelJob is either seen
// here or applied directly afterwards, never lost.
func (o *Orchestrator) finalizeJob(j *jobs.Job) error {
	o.mu.Lock()
	r := o.active[j.ID]
	delete(o.active, j.ID)
	var err error
	if r != nil && r.cancelled {
		err = o.cancelLocked(j, r.cancelReason)
		o.mu.Unlock()
		if err == nil {
			o.log.Warn("Job %s cancelled: %s", j.ID, r.cancelReason)
		}
		o.notify(j)
		return err
	}
	switch j.Status() {
	case jobs.JobRunning:
		status, done := jobs.ComputeStatus(j.Tasks())
		if !done {
			status = jobs.JobPaused
		}
		err = j.Transition(status)
	case jobs.JobPaused:
		// Paused during its last clip: nothing is left to resume.
		if status, done := jobs.ComputeStatus(j.Tasks()); done {
			if err = j.Transition(jobs.JobRunning); err == nil {
				err = j.Transition(status)
			}
		}
	}
	o.mu.Unlock()
	if err != nil {
		return err
	}

	c := j.Counts()
	switch st := j.Status(); st {
	case jobs.JobCompleted:
		o.log.Success("Job %s completed: %d/%d clip(s), %d warning(s)", j.ID, c.Completed, c.Total, c.Warnings)
	case jobs.JobFailed:
		o.log.Error("Job %s failed: %d completed, %d failed, %d skipped", j.ID, c.Completed, c.Failed, c.Skipped)
	case jobs.JobPaused:
		o.log.Warn("Job %s paused: %d clip(s) still queued", j.ID, c.Queued)
	}
	o.notify(j)
	return nil
}

// wasCancelled reports whether a cancel was requested while j is active,
// or whether j is already CANCELLED.
func (o *Orchestrator) wasCancelled(j *jobs.Job) bool {
	o.mu.Lock()
	r, ok := o.active[j.ID]
	cancelled := ok && r.cancelled
	o.mu.Unlock()
	return cancelled || j.Status() == jobs.JobCancelled
}

func (o *Orchestrator) clearActive(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}
