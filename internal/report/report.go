// Package report writes per-job reports. A report is built from job
// snapshots and written as indented JSON or as an XLSX workbook, chosen by
// the destination's extension.
package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/clipmaster/internal/jobs"
)

// ErrUnsupportedFormat is returned by Write for an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported report format (use .json or .xlsx)")

// Report is the document written for one or more settled jobs.
type Report struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Jobs        []JobReport `json:"jobs"`
	Totals      jobs.Counts `json:"totals"`
}

// JobReport summarizes one job.
type JobReport struct {
	ID           string      `json:"id"`
	Engine       string      `json:"engine"`
	Status       string      `json:"status"`
	Preset       string      `json:"preset"`
	ConfigID     string      `json:"config_id,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Counts       jobs.Counts `json:"counts"`
	Clips        []ClipRow   `json:"clips"`
}

// ClipRow is one task line.
type ClipRow struct {
	TaskID          string   `json:"task_id"`
	Source          string   `json:"source"`
	Output          string   `json:"output,omitempty"`
	Status          string   `json:"status"`
	Reason          string   `json:"reason,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Reel            string   `json:"reel,omitempty"`
	Timecode        string   `json:"timecode,omitempty"`
	Resolution      string   `json:"resolution,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
	RenderSeconds   float64  `json:"render_seconds,omitempty"`
}

// Build assembles a report from job snapshots, in the given order.
func Build(snaps []jobs.JobSnapshot, now time.Time) Report {
	r := Report{GeneratedAt: now.UTC(), Jobs: make([]JobReport, 0, len(snaps))}
	for _, s := range snaps {
		settings := s.Settings
		if s.Override != nil {
			settings = *s.Override
		}
		jr := JobReport{
			ID:           s.ID,
			Engine:       string(s.Engine),
			Status:       string(s.Status),
			Preset:       settings.PresetID,
			ConfigID:     s.ConfigID,
			CancelReason: s.CancelReason,
			CreatedAt:    s.CreatedAt.UTC(),
			UpdatedAt:    s.UpdatedAt.UTC(),
			Counts:       s.Counts,
			Clips:        make([]ClipRow, 0, len(s.Tasks)),
		}
		for _, t := range s.Tasks {
			jr.Clips = append(jr.Clips, clipRow(t))
		}
		r.Jobs = append(r.Jobs, jr)
		addCounts(&r.Totals, s.Counts)
	}
	return r
}

func clipRow(t jobs.TaskSnapshot) ClipRow {
	row := ClipRow{
		TaskID:          t.ID,
		Source:          t.SourcePath,
		Output:          t.OutputPath,
		Status:          string(t.Status),
		Reason:          t.FailureReason,
		Warnings:        t.Warnings,
		Reel:            t.Metadata.Reel,
		Timecode:        t.Metadata.Timecode,
		DurationSeconds: t.Metadata.DurationSeconds,
	}
	if t.Metadata.Width > 0 && t.Metadata.Height > 0 {
		row.Resolution = fmt.Sprintf("%dx%d", t.Metadata.Width, t.Metadata.Height)
	}
	if !t.StartedAt.IsZero() && t.EndedAt.After(t.StartedAt) {
		row.RenderSeconds = t.EndedAt.Sub(t.StartedAt).Round(time.Millisecond).Seconds()
	}
	return row
}

func addCounts(dst *jobs.Counts, c jobs.Counts) {
	dst.Total += c.Total
	dst.Completed += c.Completed
	dst.Failed += c.Failed
	dst.Skipped += c.Skipped
	dst.Running += c.Running
	dst.Queued += c.Queued
	dst.Warnings += c.Warnings
}

// Write writes r to path as JSON or XLSX depending on its extension.
func Write(path string, r Report) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return WriteJSON(path, r)
	case ".xlsx":
		return WriteXLSX(path, r)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}
