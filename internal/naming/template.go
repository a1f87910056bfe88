package naming

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTemplate names outputs after their source file.
const DefaultTemplate = "{source_name}"

// Tokens carries the values a template can reference. Zero values mean the
// value is unavailable, and the token is then kept literally.
type Tokens struct {
	SourceName string // Source basename without extension.
	Reel       string
	Timecode   string
	FrameCount int
	Width      int
	Height     int
	Codec      string
	Preset     string
	JobID      string
	Time       time.Time
}

var (
	reToken = regexp.MustCompile(`\{([a-z_]+)\}`)

	// Characters that are unsafe in a single path component on common filesystems.
	reUnsafe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// RenderFilename substitutes every recognized token in template exactly once.
// Substituted values are never re-scanned, so a value that itself looks like
// a token stays as-is. Unknown tokens and tokens without a value are left
// literally. The result has no extension.
func RenderFilename(template string, tk Tokens) (string, error) {
	if template == "" {
		template = DefaultTemplate
	}
	values := tk.values()
	out := reToken.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := values[name]; ok && v != "" {
			return sanitize(v)
		}
		return m
	})
	out = reUnsafe.ReplaceAllString(out, "_")
	out = strings.Trim(out, " .")
	if out == "" {
		return "", ErrEmptyFilename
	}
	return out, nil
}

func (tk Tokens) values() map[string]string {
	v := map[string]string{
		"source_name": tk.SourceName,
		"reel":        tk.Reel,
		"timecode":    strings.ReplaceAll(tk.Timecode, ":", "-"),
		"codec":       tk.Codec,
		"preset":      tk.Preset,
		"job_id":      shortID(tk.JobID),
	}
	if tk.FrameCount > 0 {
		v["frame_count"] = strconv.Itoa(tk.FrameCount)
	}
	if tk.Width > 0 {
		v["width"] = strconv.Itoa(tk.Width)
	}
	if tk.Height > 0 {
		v["height"] = strconv.Itoa(tk.Height)
	}
	if tk.Width > 0 && tk.Height > 0 {
		v["dimensions"] = strconv.Itoa(tk.Width) + "x" + strconv.Itoa(tk.Height)
	}
	if !tk.Time.IsZero() {
		v["date"] = tk.Time.Format("20060102")
		v["time"] = tk.Time.Format("150405")
	}
	return v
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitize(s string) string {
	return strings.TrimSpace(reUnsafe.ReplaceAllString(s, "_"))
}
