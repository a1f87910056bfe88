package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into transcode, naming, execution, persistence, operator
// commands, display, and utility. Negated flags (e.g. --no-thumbs) are
// applied after Parse so Config defaults hold unless set.

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/naming"
)

// Version is shown in --version and help; override at build time with
// -ldflags "-X github.com/backmassage/clipmaster/internal/config.Version=...".
var Version = "0.1.0-dev"

// ErrVersion is returned by ParseFlags when --version was given. The
// version has already been printed.
var ErrVersion = errors.New("version requested")

// ParseFlags parses args (without the program name) into cfg. On --help it
// prints usage and returns flag.ErrHelp; on --version it prints the version
// and returns ErrVersion.
func ParseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("clipmaster", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Negated/override flags: we capture bools then apply to cfg after Parse,
	// so that defaults from DefaultConfig() hold unless the user passes the flag.
	var negated negatedFlags

	defineTranscodeFlags(fs, cfg)
	defineNamingFlags(fs, cfg)
	defineExecutionFlags(fs, cfg, &negated)
	definePersistenceFlags(fs, cfg)
	defineOperatorFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, &negated)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(os.Stderr)
		}
		return err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp {
		printUsage(os.Stderr)
		return flag.ErrHelp
	}
	if negated.showVersion {
		fmt.Fprintln(os.Stdout, "clipmaster v"+Version)
		return ErrVersion
	}

	for _, a := range fs.Args() {
		cfg.Sources = append(cfg.Sources, NormalizeDirArg(a))
	}
	cfg.OutputDir = NormalizeDirArg(cfg.OutputDir)
	cfg.WatchDir = NormalizeDirArg(cfg.WatchDir)
	return nil
}

// negatedFlags holds boolean flags that are applied after Parse.
type negatedFlags struct {
	noThumbs    bool
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

// defineTranscodeFlags registers -e/--engine, -p/--preset, --preset-file.
func defineTranscodeFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Var(&engineValue{&cfg.Engine}, "engine", "Execution engine: subprocess | nle")
	fs.Var(&engineValue{&cfg.Engine}, "e", "Same as --engine")
	fs.StringVar(&cfg.PresetID, "preset", cfg.PresetID, "Preset id")
	fs.StringVar(&cfg.PresetID, "p", cfg.PresetID, "Same as --preset")
	fs.StringVar(&cfg.PresetFile, "preset-file", "", "JSON preset file")
}

// defineNamingFlags registers -o/--output, --template, --prefix, --suffix, --preserve-dirs, --overwrite.
func defineNamingFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.OutputDir, "output", "", "Output directory (default: next to each source)")
	fs.StringVar(&cfg.OutputDir, "o", "", "Same as --output")
	fs.StringVar(&cfg.Template, "template", cfg.Template, "Output filename template")
	fs.StringVar(&cfg.Prefix, "prefix", "", "Output filename prefix")
	fs.StringVar(&cfg.Suffix, "suffix", "", "Output filename suffix")
	fs.IntVar(&cfg.PreserveDirs, "preserve-dirs", 0, "Recreate the last N source directories under --output")
	fs.Var(&policyValue{&cfg.Overwrite}, "overwrite", "Overwrite policy: never | ask | increment | always")
}

// defineExecutionFlags registers binaries, timing, tail, batch, thumbnails.
func defineExecutionFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.StringVar(&cfg.FFmpegBin, "ffmpeg", cfg.FFmpegBin, "ffmpeg binary")
	fs.StringVar(&cfg.FFprobeBin, "ffprobe", cfg.FFprobeBin, "ffprobe binary")
	fs.StringVar(&cfg.NLEBin, "nle-bin", cfg.NLEBin, "External NLE render binary")
	fs.DurationVar(&cfg.GracePeriod, "grace", cfg.GracePeriod, "Terminate -> kill grace period")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Control loop poll interval")
	fs.IntVar(&cfg.TailLines, "tail", cfg.TailLines, "Diagnostic lines kept as a failure reason")
	fs.IntVar(&cfg.MaxSourcesPerJob, "batch", cfg.MaxSourcesPerJob, "Max sources per job (0 = unlimited)")
	fs.StringVar(&cfg.ThumbDir, "thumbs", "", "Thumbnail directory (default: temp dir)")
	fs.BoolVar(&n.noThumbs, "no-thumbs", false, "Do not extract thumbnails")
}

// definePersistenceFlags registers --state, --report, --watch, --watch-workers.
func definePersistenceFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.StateDB, "state", "", "SQLite state database")
	fs.StringVar(&cfg.ReportPath, "report", "", "Write a .json or .xlsx report")
	fs.StringVar(&cfg.WatchDir, "watch", "", "Watch folder")
	fs.IntVar(&cfg.WatchWorkers, "watch-workers", cfg.WatchWorkers, "Watch worker pool size")
}

// defineOperatorFlags registers --list, --resume, --retry, --cancel.
func defineOperatorFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.List, "list", false, "List persisted jobs")
	fs.StringVar(&cfg.ResumeID, "resume", "", "Resume a persisted job")
	fs.StringVar(&cfg.RetryID, "retry", "", "Retry the failed clips of a persisted job")
	fs.StringVar(&cfg.CancelID, "cancel", "", "Cancel a persisted job")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", "", "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", "", "Same as --log")
}

// defineUtilityFlags registers --version and --help.
func defineUtilityFlags(fs *flag.FlagSet, n *negatedFlags) {
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noThumbs {
		cfg.Thumbnails = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// printUsage writes the help text to w. Column-aligned for readability.
func printUsage(w io.Writer) {
	const col1 = 30 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "clipmaster v" + Version + " - batch transcode orchestrator"},
		{"", ""},
		{"  clipmaster [OPTIONS] <source>...", ""},
		{"  clipmaster [OPTIONS] --watch <dir>", ""},
		{"", ""},
		{"Transcode", ""},
		{"  -e, --engine <kind>", "subprocess | nle (default: subprocess)"},
		{"  -p, --preset <id>", "Preset id (default: h264-proxy)"},
		{"  --preset-file <path>", "Load additional presets from JSON"},
		{"", ""},
		{"Naming", ""},
		{"  -o, --output <dir>", "Output directory (default: next to source)"},
		{"  --template <tpl>", "Filename template (default: {source_name})"},
		{"  --prefix, --suffix <s>", "Filename prefix / suffix"},
		{"  --preserve-dirs <n>", "Recreate last N source directories"},
		{"  --overwrite <policy>", "never | ask | increment | always (default: never)"},
		{"", ""},
		{"Execution", ""},
		{"  --ffmpeg, --ffprobe <bin>", "Binaries (default: ffmpeg, ffprobe)"},
		{"  --nle-bin <bin>", "External NLE render binary"},
		{"  --grace <dur>", "Terminate -> kill grace period (default: 5s)"},
		{"  --poll <dur>", "Control loop poll interval (default: 200ms)"},
		{"  --tail <n>", "Diagnostic lines kept on failure (default: 20)"},
		{"  --batch <n>", "Max sources per job, 0 = unlimited (default: 1)"},
		{"  --thumbs <dir>", "Thumbnail directory (default: temp dir)"},
		{"  --no-thumbs", "Do not extract thumbnails"},
		{"", ""},
		{"State & reports", ""},
		{"  --state <path>", "SQLite state database"},
		{"  --report <path>", "Write a .json or .xlsx report"},
		{"  --watch <dir>", "Watch folder for new media"},
		{"  --watch-workers <n>", "Watch worker pool size (default: 2)"},
		{"", ""},
		{"Jobs (need --state)", ""},
		{"  --list", "List persisted jobs"},
		{"  --resume <id>", "Resume a paused or recovered job"},
		{"  --retry <id>", "Retry a job's failed clips"},
		{"  --cancel <id>", "Cancel a job"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  -l, --log <path>", "Append logs to file"},
		{"  -c, --check", "System diagnostics (ffmpeg, ffprobe, engines)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(w)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(w, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(w, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(w, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters so we can use enum types with flag.Var.

type engineValue struct{ p *jobs.EngineKind }

func (e *engineValue) String() string {
	if e.p == nil {
		return ""
	}
	return string(*e.p)
}

func (e *engineValue) Set(s string) error {
	k, err := jobs.ParseEngineKind(s)
	if err != nil {
		return err
	}
	*e.p = k
	return nil
}

type policyValue struct{ p *naming.OverwritePolicy }

func (v *policyValue) String() string {
	if v.p == nil {
		return ""
	}
	return string(*v.p)
}

func (v *policyValue) Set(s string) error {
	p, err := naming.ParsePolicy(s)
	if err != nil {
		return err
	}
	*v.p = p
	return nil
}
