// Package engine defines the execution-engine abstraction that renders one
// clip at a time, a registry of engines keyed by kind, and two variants: a
// subprocess engine driving ffmpeg and a stub for an external NLE.
//
// Expected failures (missing binaries, unsupported parameters, encoder
// errors) are reported as values in Validation and ClipResult, never as
// panics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/preset"
)

// Sentinel errors for pre-flight validation.
var (
	ErrEngineUnavailable   = errors.New("engine unavailable")
	ErrEngineNotRegistered = errors.New("engine not registered")
	ErrUnsupportedCodec    = errors.New("codec not supported by engine")
	ErrMissingCapability   = errors.New("engine lacks required capability")
	ErrEngineMismatch      = errors.New("job is bound to a different engine")

	// ErrClipCancelled is the cancellation cause set by CancelJob.
	ErrClipCancelled = errors.New("render cancelled by operator")
)

// Logger is the minimal logging interface engines need.
type Logger interface {
	Warn(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// ResultStatus is the outcome of a single clip render.
type ResultStatus string

const (
	ResultSuccess             ResultStatus = "success"
	ResultSuccessWithWarnings ResultStatus = "success-with-warnings"
	ResultFailed              ResultStatus = "failed"
	ResultCancelled           ResultStatus = "cancelled"
)

// Succeeded reports whether the engine produced an output.
func (s ResultStatus) Succeeded() bool {
	return s == ResultSuccess || s == ResultSuccessWithWarnings
}

// Clip is the per-render input an engine receives.
type Clip struct {
	TaskID          string
	SourcePath      string
	DurationSeconds float64 // 0 when unknown.
}

// Progress is a volatile progress sample for the running clip.
type Progress struct {
	Percent    float64 // -1 when unknown.
	ETASeconds float64 // -1 when unknown.
	Frame      int
	FPS        float64
	Speed      float64
	Position   time.Duration
}

// ProgressFunc receives progress samples. It is called from the engine's
// goroutine and must not block.
type ProgressFunc func(Progress)

// ClipResult is the outcome of RunClip.
type ClipResult struct {
	TaskID        string
	Status        ResultStatus
	OutputPath    string
	FailureReason string
	Warnings      []string
	ExitCode      int
	StartedAt     time.Time
	EndedAt       time.Time
}

// SourceProblem is a per-task pre-flight finding. It does not fail the job;
// the orchestrator fails the affected task when it reaches it.
type SourceProblem struct {
	TaskID string
	Path   string
	Reason string
}

// Validation is the result of ValidateJob. OK is false only for job-level
// problems (engine missing, unsupported parameters).
type Validation struct {
	OK             bool
	Reason         string
	Err            error
	SourceProblems []SourceProblem
}

// Engine renders clips for jobs bound to its kind.
type Engine interface {
	Kind() jobs.EngineKind
	Available() bool
	Capabilities() []preset.Capability
	ValidateJob(job *jobs.Job, params preset.ResolvedParams) Validation
	RunClip(ctx context.Context, clip Clip, params preset.ResolvedParams, outputPath string, onProgress ProgressFunc) ClipResult
	// CancelJob cancels every in-flight clip of job and returns how many
	// were signalled. It is safe to call at any time.
	CancelJob(job *jobs.Job) int
}

// --- Shared validation ---

// validateCommon runs the checks every engine shares: binding, availability,
// parameter validity, capabilities, and per-task source existence.
func validateCommon(e Engine, job *jobs.Job, params preset.ResolvedParams, codecOK func(preset.VideoCodec) bool) Validation {
	fail := func(err error, format string, args ...interface{}) Validation {
		return Validation{Err: err, Reason: fmt.Sprintf(format, args...)}
	}
	if job.Engine != e.Kind() {
		return fail(ErrEngineMismatch, "job %s is bound to engine %q, not %q", job.ID, job.Engine, e.Kind())
	}
	if !e.Available() {
		return fail(ErrEngineUnavailable, "engine %q is not available on this host", e.Kind())
	}
	if err := params.Validate(); err != nil {
		return fail(err, "invalid parameters for preset %q: %v", params.PresetID, err)
	}
	if !codecOK(params.VideoCodec) {
		return fail(ErrUnsupportedCodec, "engine %q cannot encode %s", e.Kind(), params.VideoCodec)
	}
	if missing := missingCapabilities(e.Capabilities(), params.RequiredCapabilities()); len(missing) > 0 {
		return fail(ErrMissingCapability, "engine %q lacks capability %v required by preset %q", e.Kind(), missing, params.PresetID)
	}

	v := Validation{OK: true}
	for _, t := range job.Tasks() {
		if t.Status() != jobs.TaskQueued {
			continue
		}
		if _, err := os.Stat(t.SourcePath); err != nil {
			v.SourceProblems = append(v.SourceProblems, SourceProblem{
				TaskID: t.ID, Path: t.SourcePath, Reason: "source file not found",
			})
		}
	}
	return v
}

func missingCapabilities(have, need []preset.Capability) []preset.Capability {
	set := make(map[preset.Capability]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	var missing []preset.Capability
	for _, c := range need {
		if !set[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// --- Registry ---

// Registry maps engine kinds to engines. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[jobs.EngineKind]Engine
}

// NewRegistry returns a registry holding engines.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[jobs.EngineKind]Engine)}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the engine for e.Kind().
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Kind()] = e
}

// Get returns the engine for kind.
func (r *Registry) Get(kind jobs.EngineKind) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotRegistered, kind)
	}
	return e, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []jobs.EngineKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]jobs.EngineKind, 0, len(r.engines))
	for k := range r.engines {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
