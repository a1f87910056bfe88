package pipeline

import (
	"os"

	"github.com/backmassage/clipmaster/internal/display"
	"github.com/backmassage/clipmaster/internal/jobs"
)

// RunStats tracks aggregate counters and byte totals across the jobs of
// one invocation.
type RunStats struct {
	Jobs             int
	Clips            int
	Completed        int
	Skipped          int
	Failed           int
	Warnings         int
	TotalInputBytes  int64
	TotalOutputBytes int64
}

// Add folds one settled job into the totals. Byte totals count only
// completed clips whose source and output are still on disk.
func (s *RunStats) Add(snap jobs.JobSnapshot) {
	s.Jobs++
	s.Clips += snap.Counts.Total
	s.Completed += snap.Counts.Completed
	s.Skipped += snap.Counts.Skipped
	s.Failed += snap.Counts.Failed
	s.Warnings += snap.Counts.Warnings
	for _, t := range snap.Tasks {
		if t.Status != jobs.TaskCompleted {
			continue
		}
		in, err1 := os.Stat(t.SourcePath)
		out, err2 := os.Stat(t.OutputPath)
		if err1 != nil || err2 != nil {
			continue
		}
		s.TotalInputBytes += in.Size()
		s.TotalOutputBytes += out.Size()
	}
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}

// LogSummary prints the run summary.
func LogSummary(log Logger, s *RunStats) {
	log.Info("==============================")
	log.Info("Done: %d job(s), %d clip(s): %d completed, %d skipped, %d failed",
		s.Jobs, s.Clips, s.Completed, s.Skipped, s.Failed)
	if s.Warnings > 0 {
		log.Warn("  %d warning(s) recorded; see the job report for details", s.Warnings)
	}
	if s.Completed == 0 {
		return
	}
	saved := s.SpaceSaved()
	if saved >= 0 {
		log.Success("  Proxy size: %s (sources %s, saved %s)",
			display.FormatBytes(s.TotalOutputBytes),
			display.FormatBytes(s.TotalInputBytes),
			display.FormatBytes(saved))
	} else {
		log.Warn("  Output size: %s (sources %s, %s larger)",
			display.FormatBytes(s.TotalOutputBytes),
			display.FormatBytes(s.TotalInputBytes),
			display.FormatBytes(-saved))
	}
}
