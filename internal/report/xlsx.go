package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	jobsSheet  = "Jobs"
	clipsSheet = "Clips"
)

var (
	jobHeaders = []string{
		"Job ID", "Engine", "Status", "Preset", "Config", "Created",
		"Clips", "Completed", "Failed", "Skipped", "Warnings", "Cancel Reason",
	}
	clipHeaders = []string{
		"Job ID", "Task ID", "Source", "Output", "Status", "Reel", "Timecode",
		"Resolution", "Duration (s)", "Render (s)", "Reason", "Warnings",
	}
)

// WriteXLSX writes r as a workbook with a Jobs sheet and a Clips sheet.
func WriteXLSX(path string, r Report) error {
	data, err := MarshalXLSX(r)
	if err != nil {
		return err
	}
	return writeBytes(path, data)
}

// MarshalXLSX renders r as XLSX bytes.
func MarshalXLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1".
	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	if _, err := f.NewSheet(clipsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	writeHeader(f, jobsSheet, jobHeaders)
	writeHeader(f, clipsSheet, clipHeaders)

	jobRow, clipRowN := 2, 2
	for _, j := range r.Jobs {
		writeRow(f, jobsSheet, jobRow, []any{
			j.ID, j.Engine, j.Status, j.Preset, j.ConfigID,
			j.CreatedAt.Format("2006-01-02 15:04:05"),
			j.Counts.Total, j.Counts.Completed, j.Counts.Failed, j.Counts.Skipped,
			j.Counts.Warnings, j.CancelReason,
		})
		jobRow++
		for _, c := range j.Clips {
			writeRow(f, clipsSheet, clipRowN, []any{
				j.ID, c.TaskID, c.Source, c.Output, c.Status, c.Reel, c.Timecode,
				c.Resolution, c.DurationSeconds, c.RenderSeconds,
				truncate(c.Reason, 500), strings.Join(c.Warnings, "; "),
			})
			clipRowN++
		}
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38)
	_ = f.SetColWidth(jobsSheet, "D", "F", 20)
	_ = f.SetColWidth(jobsSheet, "L", "L", 40)
	_ = f.SetColWidth(clipsSheet, "A", "B", 38)
	_ = f.SetColWidth(clipsSheet, "C", "D", 60)
	_ = f.SetColWidth(clipsSheet, "K", "L", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
