package naming

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve_Directories(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "shoot", "day1", "cam_a", "clip.mov")
	out := filepath.Join(root, "renders")

	tests := []struct {
		name  string
		rules Rules
		want  string
	}{
		{"source parent fallback", Rules{Policy: PolicyNever},
			filepath.Join(root, "shoot", "day1", "cam_a", "clip.mp4")},
		{"explicit output dir", Rules{OutputDir: out, Policy: PolicyNever},
			filepath.Join(out, "clip.mp4")},
		{"preserve two levels", Rules{OutputDir: out, PreserveDirLevels: 2, Policy: PolicyNever},
			filepath.Join(out, "day1", "cam_a", "clip.mp4")},
		{"preserve more levels than exist", Rules{OutputDir: out, PreserveDirLevels: 99, Policy: PolicyNever},
			filepath.Join(out, strings.TrimPrefix(filepath.Dir(src), filepath.VolumeName(src)), "clip.mp4")},
		{"prefix and suffix", Rules{OutputDir: out, Prefix: "px_", Suffix: "_v1", Policy: PolicyNever},
			filepath.Join(out, "px_clip_v1.mp4")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPathResolver()
			got, err := r.Resolve("task-1", src, "clip", "mp4", tt.rules)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if !filepath.IsAbs(got) {
				t.Errorf("path %q is not absolute", got)
			}
		})
	}
}

func TestResolve_NeverAndAskCollide(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "clip.mp4"))
	for _, policy := range []OverwritePolicy{PolicyNever, PolicyAsk} {
		t.Run(string(policy), func(t *testing.T) {
			r := NewPathResolver()
			_, err := r.Resolve("task-1", filepath.Join(dir, "clip.mov"), "clip", "mp4", Rules{Policy: policy})
			if !errors.Is(err, ErrCollision) {
				t.Fatalf("err = %v, want ErrCollision", err)
			}
			var ce *CollisionError
			if !errors.As(err, &ce) || ce.Policy != policy {
				t.Errorf("CollisionError = %+v", ce)
			}
		})
	}
}

func TestResolve_AlwaysReturnsExistingPath(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "clip.mp4")
	touch(t, existing)
	r := NewPathResolver()
	got, err := r.Resolve("task-1", filepath.Join(dir, "clip.mov"), "clip", "mp4", Rules{Policy: PolicyAlways})
	if err != nil {
		t.Fatal(err)
	}
	if got != existing {
		t.Errorf("got %q, want %q", got, existing)
	}
}

func TestResolve_AlwaysRejectsPathClaimedInRun(t *testing.T) {
	dir := t.TempDir()
	r := NewPathResolver()
	rules := Rules{OutputDir: filepath.Join(dir, "out"), Policy: PolicyAlways}

	a, err := r.Resolve("task-a", filepath.Join(dir, "a", "clip.mov"), "clip", "mp4", rules)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve("task-b", filepath.Join(dir, "b", "clip.mov"), "clip", "mp4", rules)
	var ce *CollisionError
	if !errors.As(err, &ce) || ce.Path != a || ce.Policy != PolicyAlways {
		t.Fatalf("err = %v, want a collision on %q", err, a)
	}

	r.Release("task-a")
	if _, err := r.Resolve("task-b", filepath.Join(dir, "b", "clip.mov"), "clip", "mp4", rules); err != nil {
		t.Errorf("after release: %v", err)
	}
}

func TestResolve_ReleaseAndClaim(t *testing.T) {
	dir := t.TempDir()
	r := NewPathResolver()
	rules := Rules{OutputDir: filepath.Join(dir, "out"), Policy: PolicyNever}
	src := filepath.Join(dir, "clip.mov")

	path, err := r.Resolve("task-a", src, "clip", "mp4", rules)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve("task-b", src, "clip", "mp4", rules); !errors.Is(err, ErrCollision) {
		t.Fatalf("claimed path err = %v, want ErrCollision", err)
	}

	// Releasing an unknown owner is a no-op.
	r.Release("task-z")
	if _, err := r.Resolve("task-b", src, "clip", "mp4", rules); !errors.Is(err, ErrCollision) {
		t.Fatalf("after unrelated release err = %v, want ErrCollision", err)
	}

	r.Release("task-a")
	got, err := r.Resolve("task-b", src, "clip", "mp4", rules)
	if err != nil || got != path {
		t.Fatalf("after release = %q, %v; want %q", got, err, path)
	}

	// task-a kept its path on the task but task-b now holds it.
	if err := r.Claim("task-a", path); !errors.Is(err, ErrCollision) {
		t.Errorf("Claim held path err = %v, want ErrCollision", err)
	}
	if err := r.Claim("task-b", path); err != nil {
		t.Errorf("owner Claim: %v", err)
	}
	r.Release("task-b")
	if err := r.Claim("task-a", path); err != nil {
		t.Errorf("Claim free path: %v", err)
	}
}

func TestResolve_IncrementIsMinimal(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "clip.mp4"))
	touch(t, filepath.Join(dir, "clip_001.mp4"))
	touch(t, filepath.Join(dir, "clip_002.mp4"))

	r := NewPathResolver()
	got, err := r.Resolve("task-1", filepath.Join(dir, "clip.mov"), "clip", "mp4", Rules{Policy: PolicyIncrement})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "clip_003.mp4"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolve_IncrementFreePathUnchanged(t *testing.T) {
	dir := t.TempDir()
	r := NewPathResolver()
	got, err := r.Resolve("task-1", filepath.Join(dir, "clip.mov"), "clip", "mp4", Rules{Policy: PolicyIncrement})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "clip.mp4"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolve_InRunClaims(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	r := NewPathResolver()
	rules := Rules{OutputDir: out, Policy: PolicyIncrement}

	a, err := r.Resolve("task-a", filepath.Join(dir, "a", "clip.mov"), "clip", "mp4", rules)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve("task-b", filepath.Join(dir, "b", "clip.mov"), "clip", "mp4", rules)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two tasks got the same path %q", a)
	}
	if want := filepath.Join(out, "clip_001.mp4"); b != want {
		t.Errorf("second task got %q, want %q", b, want)
	}

	// Re-resolving for the owner is stable.
	again, err := r.Resolve("task-a", filepath.Join(dir, "a", "clip.mov"), "clip", "mp4", rules)
	if err != nil || again != a {
		t.Errorf("owner re-resolve = %q, %v; want %q", again, err, a)
	}

	// Under "never", a path claimed by another task is a collision.
	_, err = r.Resolve("task-c", filepath.Join(dir, "c", "clip.mov"), "clip", "mp4",
		Rules{OutputDir: out, Policy: PolicyNever})
	if !errors.Is(err, ErrCollision) {
		t.Errorf("err = %v, want ErrCollision", err)
	}
}

func TestResolve_IncrementFallsBackToTimestamp(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "clip.mp4"))
	touch(t, filepath.Join(dir, "clip_001.mp4"))
	touch(t, filepath.Join(dir, "clip_002.mp4"))

	r := NewPathResolver()
	r.maxIncrement = 2
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	got, err := r.Resolve("task-1", filepath.Join(dir, "clip.mov"), "clip", "mp4", Rules{Policy: PolicyIncrement})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "clip_20260102-030405.000.mp4"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolve_EmptyFilename(t *testing.T) {
	r := NewPathResolver()
	_, err := r.Resolve("task-1", "/tmp/clip.mov", " ", "mp4", Rules{})
	if !errors.Is(err, ErrEmptyFilename) {
		t.Errorf("err = %v, want ErrEmptyFilename", err)
	}
}

func TestTailSegments(t *testing.T) {
	tests := []struct {
		dir  string
		n    int
		want string
	}{
		{"/a/b/c", 1, "c"},
		{"/a/b/c", 2, filepath.Join("b", "c")},
		{"/a/b/c/", 5, filepath.Join("a", "b", "c")},
		{"/", 2, ""},
	}
	for _, tt := range tests {
		if got := tailSegments(filepath.FromSlash(tt.dir), tt.n); got != tt.want {
			t.Errorf("tailSegments(%q, %d) = %q, want %q", tt.dir, tt.n, got, tt.want)
		}
	}
}
