// Package ffmpeg builds ffmpeg command lines from preset parameters and runs
// them with incremental stderr reading.
//
// [Build] maps a preset.ResolvedParams onto ffmpeg arguments through static
// lookup tables. [Execute] runs one process, streams progress parsed from the
// stats lines, keeps only the tail of the diagnostic output, and on context
// cancellation sends SIGTERM and escalates to a kill after a grace period.
// The classifiers in errors.go turn stderr lines into warnings and failure
// hints.
package ffmpeg
