package display

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/term"
)

// JobTable renders one row per job for the --list command.
func JobTable(snaps []jobs.JobSnapshot) string {
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		preset := s.Settings.PresetID
		if s.Override != nil {
			preset = s.Override.PresetID
		}
		rows = append(rows, []string{
			s.ID,
			string(s.Status),
			string(s.Engine),
			preset,
			fmt.Sprintf("%d/%d", s.Counts.Completed, s.Counts.Total),
			fmt.Sprint(s.Counts.Failed),
			fmt.Sprint(s.Counts.Skipped),
			s.CreatedAt.Local().Format(time.DateTime),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(term.Muted).
		Headers("JOB", "STATUS", "ENGINE", "PRESET", "DONE", "FAILED", "SKIPPED", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return term.Title.Padding(0, 1)
			}
			if col == 1 && row >= 0 && row < len(rows) {
				return statusStyle(jobs.JobStatus(rows[row][1])).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.String()
}

func statusStyle(s jobs.JobStatus) lipgloss.Style {
	switch s {
	case jobs.JobCompleted:
		return term.Success
	case jobs.JobFailed:
		return term.Error
	case jobs.JobPaused, jobs.JobRecoveryRequired, jobs.JobCancelled:
		return term.Warn
	case jobs.JobRunning:
		return term.Info
	default:
		return term.Muted
	}
}
