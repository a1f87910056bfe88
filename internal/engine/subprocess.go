package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/backmassage/clipmaster/internal/ffmpeg"
	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/preset"
)

// SubprocessConfig configures the ffmpeg-backed engine.
type SubprocessConfig struct {
	FFmpegBin   string
	GracePeriod time.Duration
	TailLines   int
	Verbose     bool
}

// SubprocessEngine renders each clip in its own ffmpeg process.
type SubprocessEngine struct {
	cfg      SubprocessConfig
	log      Logger
	lookPath func(string) (string, error)

	mu       sync.Mutex
	inflight map[string]context.CancelCauseFunc // task id -> cancel
}

// NewSubprocess returns an engine that runs cfg.FFmpegBin.
func NewSubprocess(cfg SubprocessConfig, log Logger) *SubprocessEngine {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = ffmpeg.DefaultGracePeriod
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = 20
	}
	return &SubprocessEngine{
		cfg:      cfg,
		log:      log,
		lookPath: exec.LookPath,
		inflight: make(map[string]context.CancelCauseFunc),
	}
}

func (e *SubprocessEngine) Kind() jobs.EngineKind { return jobs.EngineSubprocess }

func (e *SubprocessEngine) Available() bool {
	_, err := e.lookPath(e.cfg.FFmpegBin)
	return err == nil
}

func (e *SubprocessEngine) Capabilities() []preset.Capability {
	return []preset.Capability{
		preset.CapTranscode,
		preset.CapScale,
		preset.CapWatermark,
		preset.CapAudioPassthrough,
	}
}

func (e *SubprocessEngine) ValidateJob(job *jobs.Job, params preset.ResolvedParams) Validation {
	return validateCommon(e, job, params, ffmpeg.SupportsCodec)
}

// RunClip renders clip.SourcePath to outputPath and blocks until ffmpeg
// exits. A clip whose context was cancelled is reported cancelled whatever
// the exit status. Output left behind by a failed or cancelled render is
// removed unless the file existed before the process started.
func (e *SubprocessEngine) RunClip(ctx context.Context, clip Clip, params preset.ResolvedParams, outputPath string, onProgress ProgressFunc) ClipResult {
	res := ClipResult{TaskID: clip.TaskID, OutputPath: outputPath, ExitCode: -1, StartedAt: time.Now()}
	done := func(status ResultStatus, reason string) ClipResult {
		res.Status = status
		res.FailureReason = reason
		res.EndedAt = time.Now()
		return res
	}

	if err := params.Validate(); err != nil {
		return done(ResultFailed, fmt.Sprintf("invalid parameters: %v", err))
	}
	if !ffmpeg.SupportsCodec(params.VideoCodec) {
		return done(ResultFailed, fmt.Sprintf("ffmpeg engine cannot encode %s", params.VideoCodec))
	}
	if err := ctx.Err(); err != nil {
		return done(ResultCancelled, context.Cause(ctx).Error())
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return done(ResultFailed, fmt.Sprintf("create output directory: %v", err))
	}
	preExisted := fileExists(outputPath)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	e.track(clip.TaskID, cancel)
	defer e.untrack(clip.TaskID)

	args := ffmpeg.Build(e.cfg.FFmpegBin, clip.SourcePath, outputPath, params)
	e.log.Debug(e.cfg.Verbose, "Command: %s", strings.Join(args, " "))

	r := ffmpeg.Execute(ctx, args, ffmpeg.ExecOptions{
		GracePeriod:     e.cfg.GracePeriod,
		TailLines:       e.cfg.TailLines,
		DurationSeconds: clip.DurationSeconds,
		OnProgress: func(p ffmpeg.Progress) {
			if onProgress == nil {
				return
			}
			onProgress(Progress{
				Percent:    p.Percent,
				ETASeconds: p.ETA,
				Frame:      p.Frame,
				FPS:        p.FPS,
				Speed:      p.Speed,
				Position:   p.Position,
			})
		},
		OnLine: func(line string) {
			e.log.Debug(e.cfg.Verbose, "ffmpeg [%s]: %s", filepath.Base(clip.SourcePath), line)
		},
	})
	res.Warnings = r.Warnings
	res.ExitCode = r.ExitCode

	var status ResultStatus
	var reason string
	switch {
	case ctx.Err() != nil:
		status, reason = ResultCancelled, context.Cause(ctx).Error()
		if r.Killed {
			reason += fmt.Sprintf(" (killed after %s grace period)", e.cfg.GracePeriod)
		}
	case r.Err != nil:
		status, reason = ResultFailed, failureReason(r)
	case !fileExists(outputPath):
		status, reason = ResultFailed, "ffmpeg exited successfully but the output file was not created"
	case len(r.Warnings) > 0:
		status = ResultSuccessWithWarnings
	default:
		status = ResultSuccess
	}

	if !status.Succeeded() && !preExisted {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			e.log.Warn("Could not remove partial output %s: %v", outputPath, err)
		}
	}
	return done(status, reason)
}

// CancelJob signals every in-flight clip belonging to job.
func (e *SubprocessEngine) CancelJob(job *jobs.Job) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range job.Tasks() {
		if cancel, ok := e.inflight[t.ID]; ok {
			cancel(ErrClipCancelled)
			n++
		}
	}
	return n
}

func (e *SubprocessEngine) track(taskID string, cancel context.CancelCauseFunc) {
	e.mu.Lock()
	e.inflight[taskID] = cancel
	e.mu.Unlock()
}

func (e *SubprocessEngine) untrack(taskID string) {
	e.mu.Lock()
	delete(e.inflight, taskID)
	e.mu.Unlock()
}

// failureReason builds the task failure reason from a nonzero exit: the
// exit status, an actionable hint when one is recognized, and the tail.
func failureReason(r ffmpeg.ExecResult) string {
	var b strings.Builder
	if r.ExitCode >= 0 {
		fmt.Fprintf(&b, "ffmpeg exited with status %d", r.ExitCode)
	} else {
		fmt.Fprintf(&b, "ffmpeg failed: %v", r.Err)
	}
	if hint := ffmpeg.FailureHint(r.Tail); hint != "" {
		b.WriteString(" (" + hint + ")")
	}
	if len(r.Tail) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(r.Tail, "\n"))
	}
	return b.String()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
