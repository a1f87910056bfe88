// Package pipeline is the job engine: it creates jobs from sources, admits
// them through the scheduler, drives each queued clip through the bound
// execution engine, reconciles results against the filesystem, and
// settles the job's final status. It also discovers sources on disk and
// tallies run statistics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/backmassage/clipmaster/internal/engine"
	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/jobstore"
	"github.com/backmassage/clipmaster/internal/naming"
	"github.com/backmassage/clipmaster/internal/probe"
	"github.com/backmassage/clipmaster/internal/scheduler"
)

// Sentinel errors for lifecycle operations.
var (
	ErrJobNotFound    = jobstore.ErrJobNotFound
	ErrNoSources      = errors.New("job needs at least one source")
	ErrTooManySources = errors.New("too many sources for one job")
	ErrJobActive      = errors.New("job is already executing")
	ErrNothingToRetry = errors.New("job has no failed clips")
)

// Task reasons recorded by the orchestrator.
const (
	reasonCancelled     = "cancelled by operator"
	reasonSourceMissing = "source file not found"
	reasonOutputMissing = "output file not found"
	reasonInterrupted   = "render interrupted"
)

const defaultPollInterval = 200 * time.Millisecond

// Logger is the logging interface the orchestrator needs.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Options tune orchestrator policy.
type Options struct {
	MaxSourcesPerJob int           // 0 means unlimited.
	PollInterval     time.Duration // Scheduler admission and clip-slot polling.
	Verbose          bool
}

// Hooks are explicit extension points. Persistence is wired through
// OnJobStateChange; nothing is saved implicitly.
type Hooks struct {
	OnJobStateChange func(*jobs.Job)
	OnProgress       func(*jobs.Job, *jobs.Task, engine.Progress)
}

// Deps are the collaborators an Orchestrator is built from. Prober and
// Thumbnailer are optional.
type Deps struct {
	Registry    *jobstore.Registry
	Engines     *engine.Registry
	Scheduler   *scheduler.Scheduler
	Paths       *naming.PathResolver
	Prober      probe.Prober
	Thumbnailer probe.Thumbnailer
	Log         Logger
	Hooks       Hooks
	Options     Options
}

// run is the orchestrator's bookkeeping for a job inside ExecuteJob.
type run struct {
	stopWait     context.CancelCauseFunc
	cancelled    bool
	cancelReason string
}

// Orchestrator owns the job lifecycle. Job and task state is guarded by
// their own locks; mu serializes cancel requests against finalization.
type Orchestrator struct {
	reg     *jobstore.Registry
	engines *engine.Registry
	sched   *scheduler.Scheduler
	paths   *naming.PathResolver
	prober  probe.Prober
	thumbs  probe.Thumbnailer
	log     Logger
	hooks   Hooks
	opts    Options

	mu     sync.Mutex
	active map[string]*run
}

// New builds an orchestrator from d.
func New(d Deps) *Orchestrator {
	if d.Options.PollInterval <= 0 {
		d.Options.PollInterval = defaultPollInterval
	}
	if d.Paths == nil {
		d.Paths = naming.NewPathResolver()
	}
	return &Orchestrator{
		reg:     d.Registry,
		engines: d.Engines,
		sched:   d.Scheduler,
		paths:   d.Paths,
		prober:  d.Prober,
		thumbs:  d.Thumbnailer,
		log:     d.Log,
		hooks:   d.Hooks,
		opts:    d.Options,
		active:  make(map[string]*run),
	}
}

// Job returns the registered job with id.
func (o *Orchestrator) Job(id string) (*jobs.Job, error) {
	return o.reg.Get(id)
}

// --- Creation ---

// CreateJob registers a PENDING job with one task per source. Metadata and
// thumbnail enrichment are best effort: failures are logged and the task
// is still created.
func (o *Orchestrator) CreateJob(ctx context.Context, sources []string, kind jobs.EngineKind, settings jobs.Settings) (*jobs.Job, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if limit := o.opts.MaxSourcesPerJob; limit > 0 && len(sources) > limit {
		return nil, fmt.Errorf("%w: %d sources, limit is %d per job", ErrTooManySources, len(sources), limit)
	}
	if _, err := o.engines.Get(kind); err != nil {
		return nil, err
	}
	if err := settings.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	j := jobs.New(kind, sources, settings)
	for _, t := range j.Tasks() {
		o.enrich(ctx, t)
	}
	if err := o.reg.Add(j); err != nil {
		return nil, err
	}
	o.log.Info("Created job %s (%s, preset %s) with %d clip(s)", j.ID, kind, settings.PresetID, len(sources))
	o.notify(j)
	return j, nil
}

// enrich populates ingest metadata before the job is shared.
func (o *Orchestrator) enrich(ctx context.Context, t *jobs.Task) {
	if o.prober != nil {
		pr, err := o.prober.Probe(ctx, t.SourcePath)
		if err != nil {
			o.log.Warn("Metadata unavailable for %s: %v", filepath.Base(t.SourcePath), err)
		} else {
			t.Metadata = pr.ClipMetadata()
			for _, w := range probe.IngestWarnings(t.Metadata) {
				t.AddWarning(w)
			}
		}
	}
	if o.thumbs != nil {
		path, err := o.thumbs.Thumbnail(ctx, t.SourcePath, t.ID, t.Metadata.DurationSeconds)
		if err != nil {
			o.log.Warn("Thumbnail unavailable for %s: %v", filepath.Base(t.SourcePath), err)
		} else {
			t.Metadata.Thumbnail = path
		}
	}
}

// RetryAsNewJob creates a fresh PENDING job from the FAILED sources of a
// terminal job, with the same engine and effective settings. The original
// job is left untouched.
func (o *Orchestrator) RetryAsNewJob(ctx context.Context, id string) (*jobs.Job, error) {
	j, err := o.reg.Get(id)
	if err != nil {
		return nil, err
	}
	if st := j.Status(); !st.IsTerminal() {
		return nil, fmt.Errorf("job %s is %s; retry its failed clips in place instead", id, st)
	}
	var sources []string
	for _, t := range j.TasksWithStatus(jobs.TaskFailed) {
		sources = append(sources, t.SourcePath)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToRetry, id)
	}
	return o.CreateJob(ctx, sources, j.Engine, j.EffectiveSettings())
}

// --- Lifecycle operations ---

// StartJob executes a PENDING job and blocks until it settles.
func (o *Orchestrator) StartJob(ctx context.Context, id string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if st := j.Status(); st != jobs.JobPending {
		return &jobs.TransitionError{Entity: "job", ID: id, From: string(st), To: string(jobs.JobRunning)}
	}
	return o.ExecuteJob(ctx, id, "")
}

// ResumeJob executes a PAUSED or RECOVERY_REQUIRED job's remaining queued
// clips and blocks until it settles.
func (o *Orchestrator) ResumeJob(ctx context.Context, id string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if st := j.Status(); st != jobs.JobPaused && st != jobs.JobRecoveryRequired {
		return &jobs.TransitionError{Entity: "job", ID: id, From: string(st), To: string(jobs.JobRunning)}
	}
	return o.ExecuteJob(ctx, id, "")
}

// PauseJob stops a RUNNING job before its next clip. The clip in flight
// runs to completion.
func (o *Orchestrator) PauseJob(id string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if err := j.Transition(jobs.JobPaused); err != nil {
		return err
	}
	o.log.Warn("Job %s paused; it will stop after the current clip", id)
	o.notify(j)
	return nil
}

// PauseAll stops scheduler admission and pauses every RUNNING job.
// It returns the ids that were paused.
func (o *Orchestrator) PauseAll() []string {
	o.sched.Pause()
	var paused []string
	for _, j := range o.reg.List() {
		if j.Status() == jobs.JobRunning && o.PauseJob(j.ID) == nil {
			paused = append(paused, j.ID)
		}
	}
	return paused
}

// CancelJob cancels a non-terminal job. Queued clips are SKIPPED; a clip
// already rendering finishes first (use AbortJob to stop it).
func (o *Orchestrator) CancelJob(id, reason string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = reasonCancelled
	}

	o.mu.Lock()
	r, active := o.active[id]
	if active {
		r.cancelled = true
		r.cancelReason = reason
		if r.stopWait != nil {
			r.stopWait(errors.New(reason))
		}
		o.mu.Unlock()
		o.log.Warn("Cancel requested for job %s: %s", id, reason)
		return nil
	}
	err = o.cancelLocked(j, reason)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.log.Warn("Job %s cancelled: %s", id, reason)
	o.notify(j)
	return nil
}

// AbortJob cancels the job and terminates its in-flight render.
func (o *Orchestrator) AbortJob(id, reason string) error {
	if err := o.CancelJob(id, reason); err != nil {
		return err
	}
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	eng, err := o.engines.Get(j.Engine)
	if err != nil {
		return err
	}
	if n := eng.CancelJob(j); n > 0 {
		o.log.Warn("Terminating %d running render(s) of job %s", n, id)
	}
	return nil
}

// cancelLocked moves j to CANCELLED and skips its queued tasks. o.mu must
// be held.
func (o *Orchestrator) cancelLocked(j *jobs.Job, reason string) error {
	if err := j.Cancel(reason); err != nil {
		return err
	}
	for _, t := range j.TasksWithStatus(jobs.TaskQueued) {
		_ = t.Skip(reasonCancelled)
		o.paths.Release(t.ID)
	}
	o.sched.RemoveFromQueue(j.ID)
	return nil
}

// BindConfig records an explicit configuration id on the job.
func (o *Orchestrator) BindConfig(id, configID string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if err := j.BindConfig(configID); err != nil {
		return err
	}
	o.notify(j)
	return nil
}

// SetOverrideSettings replaces the job's effective settings while it is
// still PENDING.
func (o *Orchestrator) SetOverrideSettings(id string, s jobs.Settings) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("invalid override settings: %w", err)
	}
	if err := j.SetOverrideSettings(s); err != nil {
		return err
	}
	o.notify(j)
	return nil
}

// RetryFailedClips requeues only the FAILED clips of a non-terminal job
// and runs it again. COMPLETED clips are never re-rendered. Terminal jobs
// are immutable; use RetryAsNewJob for them.
func (o *Orchestrator) RetryFailedClips(ctx context.Context, id string) error {
	j, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	st := j.Status()
	if st.IsTerminal() {
		return &jobs.TransitionError{Entity: "job", ID: id, From: string(st), To: string(jobs.JobRunning)}
	}
	failed := j.TasksWithStatus(jobs.TaskFailed)
	if len(failed) == 0 {
		o.log.Info("Job %s has no failed clips to retry", id)
		return nil
	}
	if o.isActive(id) {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	for _, t := range failed {
		if err := t.Requeue(); err != nil {
			return err
		}
	}
	o.log.Info("Retrying %d failed clip(s) of job %s", len(failed), id)
	o.notify(j)
	return o.ExecuteJob(ctx, id, "")
}

func (o *Orchestrator) isActive(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}

func (o *Orchestrator) notify(j *jobs.Job) {
	if o.hooks.OnJobStateChange != nil {
		o.hooks.OnJobStateChange(j)
	}
}

// describeReason shortens a multi-line failure reason to its first line for
// log output; the full reason stays on the task.
func describeReason(reason string) string {
	if i := strings.IndexByte(reason, '\n'); i >= 0 {
		return reason[:i]
	}
	return reason
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
