// Package check provides system diagnostics (--check mode) and pre-run
// dependency validation (CheckDeps) for ffmpeg, ffprobe, and the
// registered execution engines.
package check

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/backmassage/clipmaster/internal/config"
	"github.com/backmassage/clipmaster/internal/engine"
	"github.com/backmassage/clipmaster/internal/ffmpeg"
	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/preset"
)

// Sentinel errors returned by CheckDeps when a required tool is missing.
var (
	ErrFFmpegNotFound = errors.New("ffmpeg not found")
	ErrEngineMissing  = errors.New("selected engine is not available")
)

const commandTimeout = 10 * time.Second

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// RunCheck prints availability of ffmpeg and ffprobe, the encoders the
// catalog's presets need, and which engine can run each preset. It is
// informational only and does not stop on failure.
func RunCheck(cfg *config.Config, engines *engine.Registry, cat *preset.Catalog, log Logger) {
	log.Info("=== System Check ===")

	checkBinary(log, "ffmpeg", cfg.FFmpegBin)
	checkBinary(log, "ffprobe", cfg.FFprobeBin)
	checkEncoders(cfg, cat, log)
	checkEngines(engines, cat, log)
}

// checkBinary verifies bin is runnable and logs its version line.
func checkBinary(log Logger, name, bin string) {
	if _, err := exec.LookPath(bin); err != nil {
		log.Error("%s not found (%s)", name, bin)
		return
	}
	out, err := output(bin, "-version")
	if err != nil {
		log.Warn("%s found but -version failed: %v", name, err)
		return
	}
	log.Success("%s: %s", name, firstLine(out))
}

// checkEncoders reports whether ffmpeg lists each encoder the presets use.
func checkEncoders(cfg *config.Config, cat *preset.Catalog, log Logger) {
	out, err := output(cfg.FFmpegBin, "-hide_banner", "-encoders")
	if err != nil {
		log.Warn("Could not list encoders: %v", err)
		return
	}
	listed := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) >= 2 {
			listed[f[1]] = true
		}
	}

	log.Info("Encoders:")
	seen := make(map[string]bool)
	for _, id := range cat.IDs() {
		p, err := cat.Resolve(id)
		if err != nil {
			continue
		}
		enc := ffmpeg.EncoderName(p.VideoCodec)
		if enc == "" || seen[enc] {
			continue
		}
		seen[enc] = true
		if listed[enc] {
			log.Success("  %s (%s)", enc, p.VideoCodec)
		} else {
			log.Error("  %s (%s) missing", enc, p.VideoCodec)
		}
	}
}

// checkEngines logs availability and capabilities per engine, then which
// engines can run each preset.
func checkEngines(engines *engine.Registry, cat *preset.Catalog, log Logger) {
	log.Info("Engines:")
	for _, kind := range engines.Kinds() {
		e, err := engines.Get(kind)
		if err != nil {
			continue
		}
		if e.Available() {
			log.Success("  %s: available %v", kind, e.Capabilities())
		} else {
			log.Warn("  %s: not available", kind)
		}
	}

	log.Info("Presets:")
	for _, id := range cat.IDs() {
		p, err := cat.Resolve(id)
		if err != nil {
			continue
		}
		var ok, reasons []string
		for _, kind := range engines.Kinds() {
			e, _ := engines.Get(kind)
			dry := jobs.New(kind, nil, jobs.Settings{PresetID: id, Params: p})
			if v := e.ValidateJob(dry, p); v.OK {
				ok = append(ok, string(kind))
			} else {
				reasons = append(reasons, v.Reason)
			}
		}
		if len(ok) > 0 {
			log.Success("  %s: %s", id, strings.Join(ok, ", "))
		} else {
			log.Warn("  %s: no engine can run it (%s)", id, strings.Join(reasons, "; "))
		}
	}
}

// CheckDeps is the pre-run validation: the selected engine must be
// available. A missing ffprobe is reported separately by HasFFprobe since
// metadata enrichment is optional.
func CheckDeps(cfg *config.Config, eng engine.Engine) error {
	if eng.Available() {
		return nil
	}
	if eng.Kind() == jobs.EngineSubprocess {
		return fmt.Errorf("%w: %s", ErrFFmpegNotFound, cfg.FFmpegBin)
	}
	return fmt.Errorf("%w: %s (%s)", ErrEngineMissing, eng.Kind(), cfg.NLEBin)
}

// HasFFprobe reports whether the configured ffprobe binary is on PATH.
func HasFFprobe(cfg *config.Config) bool {
	_, err := exec.LookPath(cfg.FFprobeBin)
	return err == nil
}

// --- internal helpers ---

func output(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		return s[:idx]
	}
	return s
}
