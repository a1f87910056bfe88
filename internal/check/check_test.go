package check

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/backmassage/clipmaster/internal/config"
	"github.com/backmassage/clipmaster/internal/engine"
	"github.com/backmassage/clipmaster/internal/preset"
)

type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordLogger) add(level, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func (r *recordLogger) Info(f string, a ...interface{})          { r.add("INFO", f, a...) }
func (r *recordLogger) Success(f string, a ...interface{})       { r.add("SUCCESS", f, a...) }
func (r *recordLogger) Warn(f string, a ...interface{})          { r.add("WARN", f, a...) }
func (r *recordLogger) Error(f string, a ...interface{})         { r.add("ERROR", f, a...) }
func (r *recordLogger) Debug(_ bool, f string, a ...interface{}) { r.add("DEBUG", f, a...) }

func (r *recordLogger) has(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

// fakeFFmpeg writes a script that answers -version and -encoders like
// ffmpeg, listing only libx264 and prores_ks.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := `#!/bin/sh
for a in "$@"; do
  case "$a" in
    -version) echo "ffmpeg version 7.1 Copyright (c) 2000-2024"; echo "built with gcc"; exit 0 ;;
    -encoders)
      echo "Encoders:"
      echo " V....D libx264              libx264 H.264 / AVC"
      echo " V....D prores_ks            Apple ProRes (iCodec Pro)"
      exit 0 ;;
  esac
done
exit 1
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func nop() engine.Logger { return &recordLogger{} }

func TestRunCheck(t *testing.T) {
	bin := fakeFFmpeg(t)
	cfg := config.DefaultConfig()
	cfg.FFmpegBin = bin
	cfg.FFprobeBin = filepath.Join(t.TempDir(), "missing-ffprobe")

	engines := engine.NewRegistry(
		engine.NewSubprocess(engine.SubprocessConfig{FFmpegBin: bin}, nop()),
		engine.NewNLEStub(filepath.Join(t.TempDir(), "missing-nle")),
	)
	log := &recordLogger{}
	RunCheck(&cfg, engines, preset.NewCatalog(), log)

	for _, want := range []string{
		"SUCCESS ffmpeg: ffmpeg version 7.1",
		"ERROR ffprobe not found",
		"SUCCESS   libx264 (h264)",
		"ERROR   libx265 (hevc) missing",
		"SUCCESS   subprocess: available",
		"WARN   nle: not available",
		"SUCCESS   h264-proxy: subprocess",
	} {
		if !log.has(want) {
			t.Errorf("missing log line %q in:\n%s", want, strings.Join(log.lines, "\n"))
		}
	}
}

func TestCheckDeps(t *testing.T) {
	bin := fakeFFmpeg(t)
	cfg := config.DefaultConfig()

	ok := engine.NewSubprocess(engine.SubprocessConfig{FFmpegBin: bin}, nop())
	if err := CheckDeps(&cfg, ok); err != nil {
		t.Errorf("available engine: %v", err)
	}

	cfg.FFmpegBin = filepath.Join(t.TempDir(), "nope")
	missing := engine.NewSubprocess(engine.SubprocessConfig{FFmpegBin: cfg.FFmpegBin}, nop())
	if err := CheckDeps(&cfg, missing); !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("missing ffmpeg err = %v", err)
	}

	nle := engine.NewNLEStub(filepath.Join(t.TempDir(), "nope"))
	if err := CheckDeps(&cfg, nle); !errors.Is(err, ErrEngineMissing) {
		t.Errorf("missing NLE err = %v", err)
	}
}
