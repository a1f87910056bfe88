// Command clipmaster is the CLI entrypoint for the clipmaster batch
// transcode orchestrator.
//
// It parses flags, builds the engine, store and orchestrator, and then
// dispatches to one mode: system diagnostics (--check), an operator command
// against persisted jobs (--list, --resume, --retry, --cancel), a watch
// folder (--watch), or a run over the positional sources.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backmassage/clipmaster/internal/check"
	"github.com/backmassage/clipmaster/internal/config"
	"github.com/backmassage/clipmaster/internal/display"
	"github.com/backmassage/clipmaster/internal/engine"
	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/jobstore"
	"github.com/backmassage/clipmaster/internal/logging"
	"github.com/backmassage/clipmaster/internal/pipeline"
	"github.com/backmassage/clipmaster/internal/preset"
	"github.com/backmassage/clipmaster/internal/probe"
	"github.com/backmassage/clipmaster/internal/scheduler"
)

// commit is injected at build time via -ldflags.
var commit = "unknown"

func main() {
	os.Exit(run())
}

// app is everything the modes need after bootstrap.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	catalog  *preset.Catalog
	engines  *engine.Registry
	registry *jobstore.Registry
	store    *jobstore.SQLiteStore
	orch     *pipeline.Orchestrator
	progress *progressLog
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, config.ErrVersion) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "clipmaster: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "clipmaster: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clipmaster: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available. All output goes through log from here on.
	display.PrintBanner(os.Stdout)
	log.Info("=== clipmaster v%s (%s) ===", config.Version, commit)

	catalog := preset.NewCatalog()
	if cfg.PresetFile != "" {
		ids, err := preset.LoadFile(catalog, cfg.PresetFile)
		if err != nil {
			log.Error("%v", err)
			return 1
		}
		log.Info("Loaded %d preset(s) from %s", len(ids), cfg.PresetFile)
	}
	engines := engine.NewRegistry(
		engine.NewSubprocess(engine.SubprocessConfig{
			FFmpegBin:   cfg.FFmpegBin,
			GracePeriod: cfg.GracePeriod,
			TailLines:   cfg.TailLines,
			Verbose:     cfg.Verbose,
		}, log),
		engine.NewNLEStub(cfg.NLEBin),
	)

	if cfg.Mode() == config.ModeCheck {
		check.RunCheck(&cfg, engines, catalog, log)
		return 0
	}

	// Phase 3: Signal handling. In a run, the first SIGINT pauses after the
	// current clip and the second aborts the render in flight. SIGTERM and
	// any signal in watch mode abort immediately.
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	// Phase 4: Persistence and the orchestrator.
	a := &app{cfg: &cfg, log: log, catalog: catalog, engines: engines, registry: jobstore.NewRegistry()}
	if cfg.StateDB != "" {
		openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
		store, err := jobstore.OpenSQLite(openCtx, cfg.StateDB)
		openCancel()
		if err != nil {
			log.Error("%v", err)
			return 1
		}
		defer store.Close()
		a.store = store

		rep, err := jobstore.Load(ctx, store, a.registry, log)
		if err != nil {
			log.Error("Cannot load state from %s: %v", cfg.StateDB, err)
			return 1
		}
		log.Debug(cfg.Verbose, "Loaded %d job(s) from %s", rep.Loaded, cfg.StateDB)
		for _, id := range rep.Recovered {
			log.Warn("Job %s was interrupted; resume it with --resume %s", id, id)
		}
	}
	a.orch = a.newOrchestrator()

	stopSignals := a.handleSignals(cancel)
	defer stopSignals()

	switch cfg.Mode() {
	case config.ModeList:
		return a.list()
	case config.ModeCancel:
		return a.cancelJob(cfg.CancelID)
	case config.ModeResume:
		return a.resume(ctx, cfg.ResumeID)
	case config.ModeRetry:
		return a.retry(ctx, cfg.RetryID)
	case config.ModeWatch:
		return a.watch(ctx)
	default:
		return a.runSources(ctx)
	}
}

// newOrchestrator wires the metadata collaborators, the scheduler and the
// persistence hook.
func (a *app) newOrchestrator() *pipeline.Orchestrator {
	cfg := a.cfg
	var prober probe.Prober
	if check.HasFFprobe(cfg) {
		prober = probe.FFprobe{Bin: cfg.FFprobeBin}
	} else {
		a.log.Warn("ffprobe not found (%s); clip metadata and {reel}/{timecode} tokens are unavailable", cfg.FFprobeBin)
	}

	var thumbs probe.Thumbnailer
	if cfg.Thumbnails && prober != nil {
		dir := cfg.ThumbDir
		if dir == "" {
			var err error
			if dir, err = os.MkdirTemp("", "clipmaster-thumbs-"); err != nil {
				a.log.Warn("Thumbnails disabled: %v", err)
			}
		}
		if dir != "" {
			thumbs = probe.FFmpegThumbnailer{Bin: cfg.FFmpegBin, Dir: dir, Width: 320, Timeout: 30 * time.Second}
			a.log.Debug(cfg.Verbose, "Thumbnails: %s", dir)
		}
	}

	a.progress = newProgressLog(a.log)
	hooks := pipeline.Hooks{
		OnProgress: func(j *jobs.Job, t *jobs.Task, p engine.Progress) { a.progress.update(t, p) },
	}
	if a.store != nil {
		hooks.OnJobStateChange = jobstore.SaveHook(a.store, a.log)
	}

	return pipeline.New(pipeline.Deps{
		Registry:    a.registry,
		Engines:     a.engines,
		Scheduler:   scheduler.New(scheduler.DefaultCeiling, a.log),
		Prober:      prober,
		Thumbnailer: thumbs,
		Log:         a.log,
		Hooks:       hooks,
		Options: pipeline.Options{
			MaxSourcesPerJob: cfg.MaxSourcesPerJob,
			PollInterval:     cfg.PollInterval,
			Verbose:          cfg.Verbose,
		},
	})
}

// handleSignals installs the interrupt policy and returns a function that
// uninstalls it.
func (a *app) handleSignals(cancel context.CancelCauseFunc) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		interrupts := 0
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				interrupts++
				if sig == syscall.SIGINT && interrupts == 1 && a.cfg.Mode() != config.ModeWatch {
					paused := a.orch.PauseAll()
					a.log.Warn("Interrupt: pausing after the current clip (%d job(s)); press Ctrl-C again to abort", len(paused))
					continue
				}
				a.log.Warn("Received %s, aborting…", sig)
				cancel(errors.New("aborted by operator"))
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
