package jobs

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNoOutputPath is returned by Start when the output path was never resolved.
var ErrNoOutputPath = errors.New("task output path has not been resolved")

// ClipMetadata is ingest-time information about a source clip. Any field
// may be zero when the probe could not determine it.
type ClipMetadata struct {
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	Codec           string  `json:"codec,omitempty"`
	FrameRate       float64 `json:"frame_rate,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	AudioChannels   int     `json:"audio_channels,omitempty"`
	AudioSampleRate int     `json:"audio_sample_rate,omitempty"`
	Timecode        string  `json:"timecode,omitempty"`
	Reel            string  `json:"reel,omitempty"`
	Thumbnail       string  `json:"thumbnail,omitempty"`
	SizeBytes       int64   `json:"size_bytes,omitempty"`
	HDR             bool    `json:"hdr,omitempty"`
	Interlaced      bool    `json:"interlaced,omitempty"`
}

// FrameCount estimates the number of frames from duration and frame rate.
func (m ClipMetadata) FrameCount() int {
	if m.DurationSeconds <= 0 || m.FrameRate <= 0 {
		return 0
	}
	return int(math.Round(m.DurationSeconds * m.FrameRate))
}

// Task is one source clip's unit of work inside a Job. ID, SourcePath and
// Metadata are fixed once the task is created; everything else changes
// only through methods. All methods are goroutine-safe.
type Task struct {
	ID         string
	SourcePath string
	Metadata   ClipMetadata

	mu            sync.Mutex
	status        TaskStatus
	outputPath    string
	failureReason string
	warnings      []string
	progress      float64
	eta           float64
	startedAt     time.Time
	endedAt       time.Time
}

func newTask(source string) *Task {
	return &Task{
		ID:         NewID(),
		SourcePath: source,
		status:     TaskQueued,
		eta:        -1,
	}
}

// Status returns the current task status.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// OutputPath returns the resolved output path, or "" before resolution.
func (t *Task) OutputPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outputPath
}

// OutputFilename returns the base name of the output path.
func (t *Task) OutputFilename() string {
	p := t.OutputPath()
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// FailureReason is set whenever the task is FAILED or SKIPPED.
func (t *Task) FailureReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failureReason
}

// Warnings returns a copy of the accumulated warnings.
func (t *Task) Warnings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.warnings...)
}

// Progress returns percent complete and the ETA in seconds (-1 if unknown).
func (t *Task) Progress() (percent, etaSeconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress, t.eta
}

// Times returns when the task last started and ended.
func (t *Task) Times() (started, ended time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt, t.endedAt
}

// SetOutputPath records the resolved output path. It may be called once.
func (t *Task) SetOutputPath(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outputPath != "" {
		return ErrOutputAlreadySet
	}
	if path == "" {
		return ErrNoOutputPath
	}
	t.outputPath = path
	return nil
}

// Start moves QUEUED -> RUNNING.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outputPath == "" {
		return ErrNoOutputPath
	}
	if err := t.transitionLocked(TaskRunning); err != nil {
		return err
	}
	t.startedAt = time.Now()
	t.endedAt = time.Time{}
	t.progress = 0
	t.eta = -1
	return nil
}

// Complete moves RUNNING -> COMPLETED. The caller must have verified the
// output exists.
func (t *Task) Complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(TaskCompleted); err != nil {
		return err
	}
	t.endedAt = time.Now()
	t.progress = 100
	t.eta = 0
	return nil
}

// Fail moves QUEUED or RUNNING -> FAILED with reason.
func (t *Task) Fail(reason string) error {
	return t.finish(TaskFailed, reason)
}

// Skip moves QUEUED or RUNNING -> SKIPPED with reason.
func (t *Task) Skip(reason string) error {
	return t.finish(TaskSkipped, reason)
}

func (t *Task) finish(to TaskStatus, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(to); err != nil {
		return err
	}
	t.failureReason = reason
	t.endedAt = time.Now()
	t.eta = -1
	return nil
}

// Requeue moves FAILED -> QUEUED for an explicit retry. The failure reason
// and timestamps are cleared; warnings and the output path are kept.
func (t *Task) Requeue() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(TaskQueued); err != nil {
		return err
	}
	t.failureReason = ""
	t.startedAt = time.Time{}
	t.endedAt = time.Time{}
	t.progress = 0
	t.eta = -1
	return nil
}

// AddWarning appends w unless it is empty.
func (t *Task) AddWarning(w string) {
	w = strings.TrimSpace(w)
	if w == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = append(t.warnings, w)
}

// UpdateProgress stores volatile progress. It is ignored unless RUNNING.
func (t *Task) UpdateProgress(percent, etaSeconds float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TaskRunning {
		return false
	}
	t.progress = math.Max(0, math.Min(100, percent))
	t.eta = etaSeconds
	return true
}

func (t *Task) transitionLocked(to TaskStatus) error {
	if !canTransitionTask(t.status, to) {
		return &TransitionError{Entity: "task", ID: t.ID, From: string(t.status), To: string(to)}
	}
	t.status = to
	return nil
}

// TaskSnapshot is a plain copy of a task, used for persistence and reports.
type TaskSnapshot struct {
	ID              string       `json:"id"`
	SourcePath      string       `json:"source_path"`
	Status          TaskStatus   `json:"status"`
	OutputPath      string       `json:"output_path,omitempty"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
	ProgressPercent float64      `json:"progress_percent"`
	ETASeconds      float64      `json:"eta_seconds"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         time.Time    `json:"ended_at"`
	Metadata        ClipMetadata `json:"metadata"`
}

// Snapshot copies the task's current state.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskSnapshot{
		ID:              t.ID,
		SourcePath:      t.SourcePath,
		Status:          t.status,
		OutputPath:      t.outputPath,
		FailureReason:   t.failureReason,
		Warnings:        append([]string(nil), t.warnings...),
		ProgressPercent: t.progress,
		ETASeconds:      t.eta,
		StartedAt:       t.startedAt,
		EndedAt:         t.endedAt,
		Metadata:        t.Metadata,
	}
}

func restoreTask(s TaskSnapshot) (*Task, error) {
	if !s.Status.Valid() {
		return nil, errors.New("task " + s.ID + ": unknown status " + string(s.Status))
	}
	return &Task{
		ID:            s.ID,
		SourcePath:    s.SourcePath,
		Metadata:      s.Metadata,
		status:        s.Status,
		outputPath:    s.OutputPath,
		failureReason: s.FailureReason,
		warnings:      append([]string(nil), s.Warnings...),
		progress:      s.ProgressPercent,
		eta:           s.ETASeconds,
		startedAt:     s.StartedAt,
		endedAt:       s.EndedAt,
	}, nil
}
