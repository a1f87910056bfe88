package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backmassage/clipmaster/internal/check"
	"github.com/backmassage/clipmaster/internal/display"
	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/pipeline"
	"github.com/backmassage/clipmaster/internal/report"
	"github.com/backmassage/clipmaster/internal/watch"
)

// list prints every persisted job.
func (a *app) list() int {
	var snaps []jobs.JobSnapshot
	for _, j := range a.registry.List() {
		snaps = append(snaps, j.Snapshot())
	}
	if len(snaps) == 0 {
		a.log.Info("No jobs in %s", a.cfg.StateDB)
		return 0
	}
	fmt.Println(display.JobTable(snaps))
	return 0
}

func (a *app) cancelJob(id string) int {
	if err := a.orch.CancelJob(id, ""); err != nil {
		a.log.Error("%v", err)
		return 1
	}
	return 0
}

func (a *app) resume(ctx context.Context, id string) int {
	if err := a.orch.ResumeJob(ctx, id); err != nil {
		a.log.Error("%v", err)
		return 1
	}
	return a.finish([]string{id})
}

// retry reruns the failed clips of id: in place while the job is still
// open, or as a new job once it is terminal.
func (a *app) retry(ctx context.Context, id string) int {
	j, err := a.orch.Job(id)
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	if !j.Status().IsTerminal() {
		if err := a.orch.RetryFailedClips(ctx, id); err != nil {
			a.log.Error("%v", err)
			return 1
		}
		return a.finish([]string{id})
	}

	nj, err := a.orch.RetryAsNewJob(ctx, id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNothingToRetry) {
			a.log.Info("Job %s has no failed clips to retry", id)
			return 0
		}
		a.log.Error("%v", err)
		return 1
	}
	a.log.Info("Retrying job %s as %s", id, nj.ID)
	if err := a.orch.StartJob(ctx, nj.ID); err != nil {
		a.log.Error("%v", err)
		return 1
	}
	return a.finish([]string{nj.ID})
}

// runSources expands the positional sources, splits them into batches of
// MaxSourcesPerJob, and runs one job per batch in order.
func (a *app) runSources(ctx context.Context) int {
	cfg := a.cfg
	sources, err := pipeline.ExpandSources(cfg.Sources)
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	if len(sources) == 0 {
		a.log.Warn("No media files found in %v", cfg.Sources)
		return 0
	}

	settings, err := a.settings()
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	eng, err := a.engines.Get(cfg.Engine)
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	if err := check.CheckDeps(cfg, eng); err != nil {
		a.log.Error("%v", err)
		return 1
	}

	batches := batch(sources, cfg.MaxSourcesPerJob)
	a.log.Info("%d source(s) in %d job(s), preset %s, output %s", len(sources), len(batches), cfg.PresetID, cfg.OutputDir)

	var ids []string
	for i, b := range batches {
		if ctx.Err() != nil {
			a.log.Warn("Stopping: %v; %d job(s) not created", context.Cause(ctx), len(batches)-i)
			break
		}
		j, err := a.orch.CreateJob(ctx, b, cfg.Engine, settings)
		if err != nil {
			a.log.Error("%v", err)
			return 1
		}
		ids = append(ids, j.ID)
		if err := a.orch.StartJob(ctx, j.ID); err != nil {
			a.log.Error("Job %s: %v", j.ID, err)
		}
		if j.Status() == jobs.JobPaused {
			if rest := len(batches) - i - 1; rest > 0 {
				a.log.Warn("Paused; %d job(s) not created", rest)
			}
			if cfg.StateDB != "" {
				a.log.Info("Resume with --state %s --resume %s", cfg.StateDB, j.ID)
			}
			break
		}
	}
	return a.finish(ids)
}

// watch runs one job per settled file under the watch directory until
// ctx is cancelled.
func (a *app) watch(ctx context.Context) int {
	cfg := a.cfg
	settings, err := a.settings()
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	eng, err := a.engines.Get(cfg.Engine)
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	if err := check.CheckDeps(cfg, eng); err != nil {
		a.log.Error("%v", err)
		return 1
	}

	handler := func(ctx context.Context, path string) error {
		j, err := a.orch.CreateJob(ctx, []string{path}, cfg.Engine, settings)
		if err != nil {
			return err
		}
		return a.orch.StartJob(ctx, j.ID)
	}
	w, err := watch.New(watch.Config{
		Dir:         cfg.WatchDir,
		Workers:     cfg.WatchWorkers,
		InitialScan: true,
		Ignore:      []string{cfg.OutputDir},
	}, handler, a.log)
	if err != nil {
		a.log.Error("%v", err)
		return 1
	}
	a.log.Info("Watching %s (%d worker(s)); Ctrl-C to stop", cfg.WatchDir, cfg.WatchWorkers)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("%v", err)
		return 1
	}

	var ids []string
	for _, j := range a.registry.List() {
		ids = append(ids, j.ID)
	}
	return a.finish(ids)
}

// settings resolves the selected preset against the catalog.
func (a *app) settings() (jobs.Settings, error) {
	params, err := a.catalog.Resolve(a.cfg.PresetID)
	if err != nil {
		return jobs.Settings{}, err
	}
	return jobs.Settings{PresetID: a.cfg.PresetID, Params: params, Naming: a.cfg.NamingRules()}, nil
}

// finish logs the run summary, writes the report when requested, and
// returns the exit code: 1 if any clip failed.
func (a *app) finish(ids []string) int {
	var (
		stats pipeline.RunStats
		snaps []jobs.JobSnapshot
	)
	for _, id := range ids {
		j, err := a.orch.Job(id)
		if err != nil {
			continue
		}
		s := j.Snapshot()
		snaps = append(snaps, s)
		stats.Add(s)
	}
	if stats.Jobs == 0 {
		return 0
	}
	pipeline.LogSummary(a.log, &stats)

	if a.cfg.ReportPath != "" {
		if err := report.Write(a.cfg.ReportPath, report.Build(snaps, time.Now())); err != nil {
			a.log.Error("Cannot write report: %v", err)
			return 1
		}
		a.log.Info("Report: %s", a.cfg.ReportPath)
	}
	if stats.Failed > 0 {
		return 1
	}
	return 0
}

// batch splits sources into groups of at most n; n <= 0 means one group.
func batch(sources []string, n int) [][]string {
	if n <= 0 || n >= len(sources) {
		return [][]string{sources}
	}
	var out [][]string
	for len(sources) > 0 {
		k := min(n, len(sources))
		out = append(out, sources[:k])
		sources = sources[k:]
	}
	return out
}
