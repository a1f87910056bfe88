package ffmpeg

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Progress is one parsed ffmpeg stats line.
type Progress struct {
	Position time.Duration // Output time reached (time=).
	Frame    int
	FPS      float64
	Speed    float64 // Realtime multiple (speed=2.5x).
	Percent  float64 // 0-100, or -1 when the clip duration is unknown.
	ETA      float64 // Seconds remaining, or -1 when unknown.
}

var (
	reStatTime  = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	reStatFrame = regexp.MustCompile(`frame=\s*(\d+)`)
	reStatFPS   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	reStatSpeed = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// ParseProgress extracts progress from a stats line. durationSeconds is the
// clip length used for Percent and ETA; pass 0 when unknown.
func ParseProgress(line string, durationSeconds float64) (Progress, bool) {
	m := reStatTime.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.ParseFloat(m[3], 64)
	pos := float64(h*3600+mi*60) + s

	p := Progress{
		Position: time.Duration(pos * float64(time.Second)),
		Percent:  -1,
		ETA:      -1,
	}
	if fm := reStatFrame.FindStringSubmatch(line); fm != nil {
		p.Frame, _ = strconv.Atoi(fm[1])
	}
	if fm := reStatFPS.FindStringSubmatch(line); fm != nil {
		p.FPS, _ = strconv.ParseFloat(fm[1], 64)
	}
	if sm := reStatSpeed.FindStringSubmatch(line); sm != nil {
		p.Speed, _ = strconv.ParseFloat(sm[1], 64)
	}
	if durationSeconds > 0 {
		p.Percent = pos / durationSeconds * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
		if p.Speed > 0 {
			remaining := durationSeconds - pos
			if remaining < 0 {
				remaining = 0
			}
			p.ETA = remaining / p.Speed
		}
	}
	return p, true
}

// isStatsLine reports whether line is a periodic progress line rather
// than a diagnostic message.
func isStatsLine(line string) bool {
	return strings.Contains(line, "time=") && (strings.Contains(line, "frame=") || strings.Contains(line, "speed="))
}

// maxPartialLine bounds the bytes buffered while waiting for a line break.
const maxPartialLine = 64 * 1024

// stderrWriter is the process's stderr. It splits on \r and \n, keeps the
// last tailMax diagnostic lines, collects classified warnings, forwards
// every diagnostic line to onLine, and offers stats lines on a bounded
// channel without ever blocking the process.
type stderrWriter struct {
	mu       sync.Mutex
	partial  []byte
	tail     []string
	tailMax  int
	warnSeen map[string]bool
	warnings []string
	onLine   func(string)
	stats    chan string
}

func newStderrWriter(tailMax int, onLine func(string)) *stderrWriter {
	if tailMax <= 0 {
		tailMax = 20
	}
	return &stderrWriter{
		tailMax:  tailMax,
		warnSeen: make(map[string]bool),
		onLine:   onLine,
		stats:    make(chan string, 16),
	}
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexAny(w.partial, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.partial[:i])
		w.partial = w.partial[i+1:]
		w.emitLocked(line)
	}
	if len(w.partial) > maxPartialLine {
		w.emitLocked(string(w.partial))
		w.partial = nil
	}
	return len(p), nil
}

// flush emits any unterminated final line.
func (w *stderrWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emitLocked(string(w.partial))
		w.partial = nil
	}
}

func (w *stderrWriter) emitLocked(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if isStatsLine(line) {
		select {
		case w.stats <- line:
		default:
			// Progress is volatile; a newer line will follow.
		}
		return
	}
	if w.onLine != nil {
		w.onLine(line)
	}
	w.tail = append(w.tail, line)
	if len(w.tail) > w.tailMax {
		w.tail = w.tail[len(w.tail)-w.tailMax:]
	}
	if msg := ClassifyWarning(line); msg != "" && !w.warnSeen[msg] {
		w.warnSeen[msg] = true
		w.warnings = append(w.warnings, msg)
	}
}

func (w *stderrWriter) results() (tail, warnings []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.tail...), append([]string(nil), w.warnings...)
}
