// Package probe inspects source clips with ffprobe and extracts preview
// thumbnails with ffmpeg. A single JSON call per file yields the container
// and stream metadata that becomes a task's ingest metadata.
//
// Both collaborators are consumed through interfaces (Prober, Thumbnailer)
// so the orchestrator can run with fakes in tests.
package probe
