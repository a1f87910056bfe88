// Package config holds runtime configuration: defaults, CLI flag parsing, and
// validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/naming"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Mode is the top-level action selected on the command line.
type Mode string

const (
	ModeRun    Mode = "run"    // Build one or more jobs from the positional sources and execute them.
	ModeWatch  Mode = "watch"  // Turn new files in a watch folder into jobs.
	ModeCheck  Mode = "check"  // Diagnostics only.
	ModeList   Mode = "list"   // Print persisted jobs.
	ModeResume Mode = "resume" // Resume a persisted PAUSED or RECOVERY_REQUIRED job.
	ModeRetry  Mode = "retry"  // Retry the failed clips of a persisted job.
	ModeCancel Mode = "cancel" // Cancel a persisted job.
)

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then mutated by [ParseFlags] before being passed (by pointer) to the
// packages that need it.
type Config struct {
	// Sources are the positional arguments: files or directories.
	Sources []string

	// Engine and transcode settings.
	Engine     jobs.EngineKind // Default: "subprocess".
	PresetID   string          // Default: "h264-proxy".
	PresetFile string          // Optional JSON preset file.

	// Naming.
	OutputDir    string                 // Empty means next to each source.
	Template     string                 // Default: "{source_name}".
	Prefix       string
	Suffix       string
	PreserveDirs int                    // Recreate the last N source directory segments under OutputDir.
	Overwrite    naming.OverwritePolicy // Default: "never".

	// Binaries.
	FFmpegBin  string // Default: "ffmpeg".
	FFprobeBin string // Default: "ffprobe".
	NLEBin     string // Default: "nle-render".

	// Execution.
	GracePeriod      time.Duration // Terminate -> kill. Default: 5s.
	PollInterval     time.Duration // Default: 200ms.
	TailLines        int           // Diagnostic lines kept as a failure reason. Default: 20.
	MaxSourcesPerJob int           // Default: 1. 0 means unlimited.

	// Persistence, reports and watch folder.
	StateDB      string // SQLite database; empty disables persistence.
	ReportPath   string // .json or .xlsx.
	WatchDir     string
	WatchWorkers int    // Default: 2.
	ThumbDir     string // Empty means a temp directory.
	Thumbnails   bool   // Default: true. Cleared by --no-thumbs.

	// Operator commands against persisted jobs.
	List     bool
	ResumeID string
	RetryID  string
	CancelID string

	// Display and logging.
	Verbose   bool
	ColorMode ColorMode // Default: "auto".
	LogFile   string
	CheckOnly bool
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [ParseFlags] applies CLI overrides.
func DefaultConfig() Config {
	return Config{
		Engine:           jobs.EngineSubprocess,
		PresetID:         "h264-proxy",
		Template:         naming.DefaultTemplate,
		Overwrite:        naming.PolicyNever,
		FFmpegBin:        "ffmpeg",
		FFprobeBin:       "ffprobe",
		NLEBin:           "nle-render",
		GracePeriod:      5 * time.Second,
		PollInterval:     200 * time.Millisecond,
		TailLines:        20,
		MaxSourcesPerJob: 1,
		WatchWorkers:     2,
		Thumbnails:       true,
		ColorMode:        ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Mode reports the selected action. Operator commands take precedence over
// watch mode, which takes precedence over a plain run.
func (c *Config) Mode() Mode {
	switch {
	case c.CheckOnly:
		return ModeCheck
	case c.List:
		return ModeList
	case c.ResumeID != "":
		return ModeResume
	case c.RetryID != "":
		return ModeRetry
	case c.CancelID != "":
		return ModeCancel
	case c.WatchDir != "":
		return ModeWatch
	default:
		return ModeRun
	}
}

// NamingRules returns the naming settings as a [naming.Rules].
func (c *Config) NamingRules() naming.Rules {
	return naming.Rules{
		Template:          c.Template,
		Prefix:            c.Prefix,
		Suffix:            c.Suffix,
		OutputDir:         c.OutputDir,
		PreserveDirLevels: c.PreserveDirs,
		Policy:            c.Overwrite,
	}
}

// Validate checks enum fields, counts and durations, and that exactly one
// action is selected with the inputs it needs.
func (c *Config) Validate() error {
	switch c.Engine {
	case jobs.EngineSubprocess, jobs.EngineNLE:
		// valid
	default:
		return errors.New("invalid engine (use 'subprocess' or 'nle')")
	}
	if _, err := naming.ParsePolicy(string(c.Overwrite)); err != nil {
		return err
	}
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode")
	}
	if strings.TrimSpace(c.PresetID) == "" {
		return errors.New("preset must not be empty")
	}

	switch {
	case c.PreserveDirs < 0:
		return errors.New("--preserve-dirs must not be negative")
	case c.TailLines < 1:
		return errors.New("--tail must be at least 1")
	case c.MaxSourcesPerJob < 0:
		return errors.New("--batch must not be negative (0 means unlimited)")
	case c.WatchWorkers < 1:
		return errors.New("--watch-workers must be at least 1")
	case c.GracePeriod <= 0:
		return errors.New("--grace must be positive")
	case c.PollInterval <= 0:
		return errors.New("--poll must be positive")
	}

	if n := c.operatorCommands(); n > 1 {
		return errors.New("use only one of --list, --resume, --retry, --cancel")
	} else if n == 1 && c.StateDB == "" {
		return errors.New("--list, --resume, --retry and --cancel need --state")
	}

	switch c.Mode() {
	case ModeRun:
		if len(c.Sources) == 0 {
			return errors.New("need at least one source file or directory")
		}
	case ModeWatch:
		if len(c.Sources) > 0 {
			return fmt.Errorf("--watch takes no positional sources (got %d)", len(c.Sources))
		}
	}
	return nil
}

func (c *Config) operatorCommands() int {
	n := 0
	for _, set := range []bool{c.List, c.ResumeID != "", c.RetryID != "", c.CancelID != ""} {
		if set {
			n++
		}
	}
	return n
}
