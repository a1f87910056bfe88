package ffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// DefaultGracePeriod is how long a process gets to exit after SIGTERM.
const DefaultGracePeriod = 5 * time.Second

// ExecOptions tune a single Execute call.
type ExecOptions struct {
	GracePeriod     time.Duration  // SIGTERM -> kill escalation delay.
	TailLines       int            // Diagnostic lines kept for the failure reason.
	DurationSeconds float64        // Clip length for percent/ETA; 0 if unknown.
	OnProgress      func(Progress) // Called from the Execute goroutine.
	OnLine          func(string)   // Receives every diagnostic line.
}

// ExecResult holds the outcome of a single ffmpeg invocation.
type ExecResult struct {
	Tail       []string // Last TailLines diagnostic lines.
	Warnings   []string // Deduplicated classified warnings.
	ExitCode   int      // -1 when the process did not exit normally.
	Err        error    // Start or wait error; nil on exit status 0.
	Terminated bool     // SIGTERM was sent because ctx was cancelled.
	Killed     bool     // The grace period elapsed and the process was killed.
}

// Execute runs args[0] with args[1:] and blocks until the process exits.
// Stderr is read incrementally; stats lines are parsed into progress
// callbacks. When ctx is cancelled the process receives SIGTERM and, if it
// is still running after the grace period, SIGKILL.
func Execute(ctx context.Context, args []string, opts ExecOptions) ExecResult {
	if len(args) == 0 {
		return ExecResult{ExitCode: -1, Err: errors.New("empty command")}
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	w := newStderrWriter(opts.TailLines, opts.OnLine)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = w
	// Bounds the wait for stderr to close if a child process inherited it.
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		return ExecResult{ExitCode: -1, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var (
		res       ExecResult
		waitErr   error
		ctxDone   = ctx.Done()
		killTimer <-chan time.Time
	)

loop:
	for {
		select {
		case line := <-w.stats:
			reportProgress(line, opts)
		case waitErr = <-done:
			break loop
		case <-ctxDone:
			ctxDone = nil
			res.Terminated = true
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				// Platforms without SIGTERM support only Kill.
				res.Killed = cmd.Process.Kill() == nil
				continue
			}
			timer := time.NewTimer(grace)
			defer timer.Stop()
			killTimer = timer.C
		case <-killTimer:
			killTimer = nil
			res.Killed = cmd.Process.Kill() == nil
		}
	}

	w.flush()
	for drained := false; !drained; {
		select {
		case line := <-w.stats:
			reportProgress(line, opts)
		default:
			drained = true
		}
	}

	res.Tail, res.Warnings = w.results()
	res.Err = waitErr
	res.ExitCode = exitCode(cmd, waitErr)
	return res
}

func reportProgress(line string, opts ExecOptions) {
	if opts.OnProgress == nil {
		return
	}
	if p, ok := ParseProgress(line, opts.DurationSeconds); ok {
		opts.OnProgress(p)
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err == nil && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
