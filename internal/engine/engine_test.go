package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/preset"
)

type nopLogger struct{}

func (nopLogger) Warn(string, ...interface{})        {}
func (nopLogger) Debug(bool, string, ...interface{}) {}

func proxyParams() preset.ResolvedParams {
	return preset.ResolvedParams{
		PresetID:   "test",
		VideoCodec: preset.CodecH264,
		Container:  preset.ContainerMP4,
		Quality:    23,
		ScaleMode:  preset.ScaleNone,
		AudioCodec: preset.AudioAAC,
	}
}

// fakeFFmpeg writes a shell script standing in for ffmpeg. The script sees
// the output path as "$last".
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(bin string) *SubprocessEngine {
	return NewSubprocess(SubprocessConfig{FFmpegBin: bin, GracePeriod: 500 * time.Millisecond, TailLines: 5}, nopLogger{})
}

func sourceFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "clip.mov")
	if err := os.WriteFile(p, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSubprocess_RunClipOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantStatus ResultStatus
		wantReason string
		wantOutput bool
	}{
		{
			name:       "success",
			script:     `echo "frame=10 fps=10 time=00:00:01.00 speed=1.0x" >&2; : > "$last"`,
			wantStatus: ResultSuccess,
			wantOutput: true,
		},
		{
			name:       "success with warnings",
			script:     `echo "Non-monotonous DTS in output stream 0:1" >&2; : > "$last"`,
			wantStatus: ResultSuccessWithWarnings,
			wantOutput: true,
		},
		{
			name:       "zero exit without output",
			script:     `exit 0`,
			wantStatus: ResultFailed,
			wantReason: "output file was not created",
		},
		{
			name:       "nonzero exit removes partial output",
			script:     `: > "$last"; echo "Permission denied" >&2; exit 1`,
			wantStatus: ResultFailed,
			wantReason: "ffmpeg exited with status 1 (permission denied",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(fakeFFmpeg(t, tt.script))
			out := filepath.Join(t.TempDir(), "sub", "clip.mp4")
			var samples []Progress
			res := e.RunClip(context.Background(), Clip{TaskID: "t1", SourcePath: sourceFile(t), DurationSeconds: 2},
				proxyParams(), out, func(p Progress) { samples = append(samples, p) })

			if res.Status != tt.wantStatus {
				t.Fatalf("Status = %s, want %s (reason %q)", res.Status, tt.wantStatus, res.FailureReason)
			}
			if !strings.Contains(res.FailureReason, tt.wantReason) {
				t.Errorf("FailureReason = %q, want substring %q", res.FailureReason, tt.wantReason)
			}
			if got := fileExists(out); got != tt.wantOutput {
				t.Errorf("output exists = %v, want %v", got, tt.wantOutput)
			}
			if res.StartedAt.IsZero() || res.EndedAt.Before(res.StartedAt) {
				t.Errorf("bad timestamps %v .. %v", res.StartedAt, res.EndedAt)
			}
			if tt.name == "success" && (len(samples) != 1 || samples[0].Percent != 50) {
				t.Errorf("progress samples = %+v", samples)
			}
			if e.running("t1") {
				t.Error("task still tracked after RunClip returned")
			}
		})
	}
}

func TestSubprocess_FailureKeepsPreexistingOutput(t *testing.T) {
	e := newTestEngine(fakeFFmpeg(t, `exit 2`))
	out := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(out, []byte("earlier render"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := e.RunClip(context.Background(), Clip{TaskID: "t1", SourcePath: sourceFile(t)}, proxyParams(), out, nil)
	if res.Status != ResultFailed || res.ExitCode != 2 {
		t.Fatalf("Status=%s ExitCode=%d", res.Status, res.ExitCode)
	}
	if !fileExists(out) {
		t.Error("pre-existing output was removed")
	}
}

func TestSubprocess_CancelJob(t *testing.T) {
	e := newTestEngine(fakeFFmpeg(t, `
: > "$last"
trap 'exit 255' TERM
while :; do :; done
`))
	src := sourceFile(t)
	job := jobs.New(jobs.EngineSubprocess, []string{src}, jobs.Settings{})
	task := job.Tasks()[0]
	out := filepath.Join(t.TempDir(), "clip.mp4")

	if n := e.CancelJob(job); n != 0 {
		t.Errorf("CancelJob with nothing in flight = %d", n)
	}

	results := make(chan ClipResult, 1)
	go func() {
		results <- e.RunClip(context.Background(), Clip{TaskID: task.ID, SourcePath: src}, proxyParams(), out, nil)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !(e.running(task.ID) && fileExists(out)) {
		if time.Now().After(deadline) {
			t.Fatal("render never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := e.CancelJob(job); n != 1 {
		t.Errorf("CancelJob = %d, want 1", n)
	}

	res := <-results
	if res.Status != ResultCancelled {
		t.Fatalf("Status = %s (%q), want cancelled", res.Status, res.FailureReason)
	}
	if !strings.Contains(res.FailureReason, ErrClipCancelled.Error()) {
		t.Errorf("FailureReason = %q", res.FailureReason)
	}
	if fileExists(out) {
		t.Error("partial output not removed after cancel")
	}
}

func TestSubprocess_CancelledBeforeStart(t *testing.T) {
	e := newTestEngine(fakeFFmpeg(t, `: > "$last"`))
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errors.New("shutting down"))
	res := e.RunClip(ctx, Clip{TaskID: "t1", SourcePath: sourceFile(t)}, proxyParams(), filepath.Join(t.TempDir(), "o.mp4"), nil)
	if res.Status != ResultCancelled || res.FailureReason != "shutting down" {
		t.Errorf("Status=%s reason=%q", res.Status, res.FailureReason)
	}
}

func TestValidateJob(t *testing.T) {
	present := sourceFile(t)
	missing := filepath.Join(t.TempDir(), "gone.mov")

	available := func(string) (string, error) { return "/bin/true", nil }
	unavailable := func(string) (string, error) { return "", exec.ErrNotFound }

	prores := preset.ResolvedParams{PresetID: "p", VideoCodec: preset.CodecProRes, Container: preset.ContainerMOV, ScaleMode: preset.ScaleNone, AudioCodec: preset.AudioPCM}
	prores.Watermark = "DRAFT"

	tests := []struct {
		name     string
		engine   func() Engine
		kind     jobs.EngineKind
		params   preset.ResolvedParams
		wantErr  error
		problems int
	}{
		{
			name: "ok with a missing source",
			engine: func() Engine {
				e := newTestEngine("ffmpeg")
				e.lookPath = available
				return e
			},
			kind:     jobs.EngineSubprocess,
			params:   proxyParams(),
			problems: 1,
		},
		{
			name: "binary missing",
			engine: func() Engine {
				e := newTestEngine("ffmpeg")
				e.lookPath = unavailable
				return e
			},
			kind:    jobs.EngineSubprocess,
			params:  proxyParams(),
			wantErr: ErrEngineUnavailable,
		},
		{
			name: "engine mismatch",
			engine: func() Engine {
				e := newTestEngine("ffmpeg")
				e.lookPath = available
				return e
			},
			kind:    jobs.EngineNLE,
			params:  proxyParams(),
			wantErr: ErrEngineMismatch,
		},
		{
			name: "nle rejects h264",
			engine: func() Engine {
				n := NewNLEStub("")
				n.lookPath = available
				return n
			},
			kind:    jobs.EngineNLE,
			params:  proxyParams(),
			wantErr: ErrUnsupportedCodec,
		},
		{
			name: "nle lacks watermark",
			engine: func() Engine {
				n := NewNLEStub("")
				n.lookPath = available
				return n
			},
			kind:    jobs.EngineNLE,
			params:  prores,
			wantErr: ErrMissingCapability,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := jobs.New(tt.kind, []string{present, missing}, jobs.Settings{})
			v := tt.engine().ValidateJob(job, tt.params)
			if tt.wantErr != nil {
				if v.OK || !errors.Is(v.Err, tt.wantErr) {
					t.Fatalf("Validation = %+v, want %v", v, tt.wantErr)
				}
				if v.Reason == "" {
					t.Error("failed validation has no reason")
				}
				return
			}
			if !v.OK {
				t.Fatalf("Validation = %+v, want OK", v)
			}
			if len(v.SourceProblems) != tt.problems {
				t.Errorf("SourceProblems = %+v, want %d", v.SourceProblems, tt.problems)
			}
			if tt.problems > 0 && v.SourceProblems[0].Path != missing {
				t.Errorf("problem path = %q", v.SourceProblems[0].Path)
			}
		})
	}
}

func TestNLEStub_RunClipFails(t *testing.T) {
	n := NewNLEStub("")
	res := n.RunClip(context.Background(), Clip{TaskID: "t"}, preset.ResolvedParams{}, "/out/x.mov", nil)
	if res.Status != ResultFailed || res.FailureReason != nleNotImplemented {
		t.Errorf("result = %+v", res)
	}
}

func TestRegistry(t *testing.T) {
	sub := newTestEngine("ffmpeg")
	r := NewRegistry(sub, NewNLEStub(""))
	got, err := r.Get(jobs.EngineSubprocess)
	if err != nil || got != Engine(sub) {
		t.Fatalf("Get = %v, %v", got, err)
	}
	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != jobs.EngineNLE || kinds[1] != jobs.EngineSubprocess {
		t.Errorf("Kinds = %v", kinds)
	}
	if _, err := NewRegistry().Get(jobs.EngineNLE); !errors.Is(err, ErrEngineNotRegistered) {
		t.Errorf("err = %v, want ErrEngineNotRegistered", err)
	}
}

// running reports whether taskID has a live process.
func (e *SubprocessEngine) running(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[taskID]
	return ok
}
