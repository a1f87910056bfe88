// Package jobs defines the Job and ClipTask aggregates and the two-level
// state machine that governs them. Every status change goes through a
// validated method; illegal edges return a *TransitionError.
package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/clipmaster/internal/naming"
	"github.com/backmassage/clipmaster/internal/preset"
)

// EngineKind names the execution engine a job is bound to.
type EngineKind string

const (
	EngineSubprocess EngineKind = "subprocess"
	EngineNLE        EngineKind = "nle"
)

// ParseEngineKind validates user input.
func ParseEngineKind(s string) (EngineKind, error) {
	switch k := EngineKind(strings.ToLower(strings.TrimSpace(s))); k {
	case EngineSubprocess, EngineNLE:
		return k, nil
	default:
		return "", fmt.Errorf("invalid engine %q (use 'subprocess' or 'nle')", s)
	}
}

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// Settings is the configuration captured when a job is created.
type Settings struct {
	PresetID string                `json:"preset_id"`
	Params   preset.ResolvedParams `json:"params"`
	Naming   naming.Rules          `json:"naming"`
}

// Hash returns a short stable digest of s, used to derive a synthetic
// configuration id for jobs without an explicit binding.
func (s Settings) Hash() string {
	b, _ := json.Marshal(s)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:6])
}

// Counts are derived task tallies; they are computed on demand.
type Counts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Running   int `json:"running"`
	Queued    int `json:"queued"`
	Warnings  int `json:"warnings"`
}

// Job is a batch of clip tasks sharing one engine and one settings snapshot.
// ID, Engine and CreatedAt never change after creation.
type Job struct {
	ID        string
	Engine    EngineKind
	CreatedAt time.Time

	mu           sync.Mutex
	status       JobStatus
	updatedAt    time.Time
	settings     Settings
	override     *Settings
	configID     string
	cancelReason string
	tasks        []*Task
}

// New creates a PENDING job with one QUEUED task per source, in order.
func New(engine EngineKind, sources []string, settings Settings) *Job {
	now := time.Now()
	j := &Job{
		ID:        NewID(),
		Engine:    engine,
		CreatedAt: now,
		status:    JobPending,
		updatedAt: now,
		settings:  settings,
	}
	for _, src := range sources {
		j.tasks = append(j.tasks, newTask(src))
	}
	return j
}

// Status returns the current job status.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// UpdatedAt returns the time of the last job-level change.
func (j *Job) UpdatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.updatedAt
}

// Transition validates and applies a job status change.
func (j *Job) Transition(to JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to)
}

func (j *Job) transitionLocked(to JobStatus) error {
	if !CanTransition(j.status, to) {
		return &TransitionError{Entity: "job", ID: j.ID, From: string(j.status), To: string(to)}
	}
	j.status = to
	j.updatedAt = time.Now()
	return nil
}

// Cancel moves the job to CANCELLED and records why.
func (j *Job) Cancel(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(JobCancelled); err != nil {
		return err
	}
	j.cancelReason = reason
	return nil
}

// CancelReason returns the reason given to Cancel.
func (j *Job) CancelReason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelReason
}

// Settings returns the immutable creation-time snapshot.
func (j *Job) Settings() Settings {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.settings
}

// Override returns the override settings, if any.
func (j *Job) Override() (Settings, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.override == nil {
		return Settings{}, false
	}
	return *j.override, true
}

// SetOverrideSettings replaces the override. Only allowed while PENDING.
func (j *Job) SetOverrideSettings(s Settings) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != JobPending {
		return fmt.Errorf("job %s is %s: %w", j.ID, j.status, ErrOverrideLocked)
	}
	j.override = &s
	j.updatedAt = time.Now()
	return nil
}

// EffectiveSettings returns the override when present, else the snapshot.
func (j *Job) EffectiveSettings() Settings {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.override != nil {
		return *j.override
	}
	return j.settings
}

// ConfigID returns the explicitly bound configuration id, if any.
func (j *Job) ConfigID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.configID
}

// BindConfig binds a configuration id. Not allowed while RUNNING or after
// the job reached a terminal status.
func (j *Job) BindConfig(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == JobRunning || j.status.IsTerminal() {
		return fmt.Errorf("job %s is %s: %w", j.ID, j.status, ErrBindingLocked)
	}
	j.configID = strings.TrimSpace(id)
	j.updatedAt = time.Now()
	return nil
}

// Tasks returns the tasks in execution order. The slice is a copy; the
// tasks are shared.
func (j *Job) Tasks() []*Task {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*Task(nil), j.tasks...)
}

// Task looks up a task by id.
func (j *Job) Task(id string) (*Task, bool) {
	for _, t := range j.Tasks() {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// TasksWithStatus returns the tasks currently in status s, in order.
func (j *Job) TasksWithStatus(s TaskStatus) []*Task {
	var out []*Task
	for _, t := range j.Tasks() {
		if t.Status() == s {
			out = append(out, t)
		}
	}
	return out
}

// Counts tallies tasks by status.
func (j *Job) Counts() Counts {
	tasks := j.Tasks()
	snaps := make([]TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		snaps = append(snaps, t.Snapshot())
	}
	return countsOf(snaps)
}

func countsOf(tasks []TaskSnapshot) Counts {
	var c Counts
	for _, s := range tasks {
		c.Total++
		c.Warnings += len(s.Warnings)
		switch s.Status {
		case TaskCompleted:
			c.Completed++
		case TaskFailed:
			c.Failed++
		case TaskSkipped:
			c.Skipped++
		case TaskRunning:
			c.Running++
		case TaskQueued:
			c.Queued++
		}
	}
	return c
}

// Recover applies startup recovery: a job persisted as RUNNING or PAUSED
// becomes RECOVERY_REQUIRED, and any task caught mid-render is FAILED so
// an operator can retry it. It reports whether anything changed.
func (j *Job) Recover() bool {
	j.mu.Lock()
	st := j.status
	if st != JobRunning && st != JobPaused {
		j.mu.Unlock()
		return false
	}
	_ = j.transitionLocked(JobRecoveryRequired)
	tasks := append([]*Task(nil), j.tasks...)
	j.mu.Unlock()

	for _, t := range tasks {
		if t.Status() == TaskRunning {
			_ = t.Fail("interrupted by process restart")
		}
	}
	return true
}

// JobSnapshot is a plain copy of a job, used for persistence and reports.
type JobSnapshot struct {
	ID           string         `json:"id"`
	Engine       EngineKind     `json:"engine"`
	Status       JobStatus      `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Settings     Settings       `json:"settings"`
	Override     *Settings      `json:"override_settings,omitempty"`
	ConfigID     string         `json:"config_id,omitempty"`
	CancelReason string         `json:"cancel_reason,omitempty"`
	Tasks        []TaskSnapshot `json:"tasks"`
	Counts       Counts         `json:"counts"`
}

// Snapshot copies the job and all of its tasks.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	s := JobSnapshot{
		ID:           j.ID,
		Engine:       j.Engine,
		Status:       j.status,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.updatedAt,
		Settings:     j.settings,
		ConfigID:     j.configID,
		CancelReason: j.cancelReason,
	}
	if j.override != nil {
		o := *j.override
		s.Override = &o
	}
	tasks := append([]*Task(nil), j.tasks...)
	j.mu.Unlock()

	for _, t := range tasks {
		s.Tasks = append(s.Tasks, t.Snapshot())
	}
	s.Counts = countsOf(s.Tasks)
	return s
}

// Restore rebuilds a job from a snapshot.
func Restore(s JobSnapshot) (*Job, error) {
	j := &Job{}
	if err := j.fill(s); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Job) fill(s JobSnapshot) error {
	if s.ID == "" {
		return fmt.Errorf("job snapshot has no id")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("job %s: unknown status %q", s.ID, s.Status)
	}
	if _, err := ParseEngineKind(string(s.Engine)); err != nil {
		return fmt.Errorf("job %s: %w", s.ID, err)
	}
	tasks := make([]*Task, 0, len(s.Tasks))
	for _, ts := range s.Tasks {
		t, err := restoreTask(ts)
		if err != nil {
			return fmt.Errorf("job %s: %w", s.ID, err)
		}
		tasks = append(tasks, t)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ID = s.ID
	j.Engine = s.Engine
	j.CreatedAt = s.CreatedAt
	j.status = s.Status
	j.updatedAt = s.UpdatedAt
	j.settings = s.Settings
	j.override = s.Override
	j.configID = s.ConfigID
	j.cancelReason = s.CancelReason
	j.tasks = tasks
	return nil
}

// MarshalJSON encodes the job through its snapshot.
func (j *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Snapshot())
}

// UnmarshalJSON decodes a snapshot into j.
func (j *Job) UnmarshalJSON(data []byte) error {
	var s JobSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return j.fill(s)
}
