package probe

import (
	"strconv"
	"strings"

	"github.com/backmassage/clipmaster/internal/jobs"
)

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	NbStreams  int
	FormatName string
	Duration   float64
	Size       int64
	BitRate    int64
	Tags       map[string]string
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index          int
	Codec          string
	Profile        string
	PixFmt         string
	Width          int
	Height         int
	BitRate        int64
	FieldOrder     string
	ColorTransfer  string
	ColorPrimaries string
	AvgFrameRate   string
	IsAttachedPic  bool
	Tags           map[string]string
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index      int
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int64
}

// ProbeResult is the fully parsed output of a single ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
// Timecode and Reel come from the first stream or format tag that
// carries them, including QuickTime tmcd data tracks.
type ProbeResult struct {
	Format       FormatInfo
	PrimaryVideo *VideoStream
	AudioStreams []AudioStream
	Timecode     string
	Reel         string
}

// FrameRate parses the primary stream's avg_frame_rate ("24000/1001").
// It returns 0 when the rate is unknown.
func (p *ProbeResult) FrameRate() float64 {
	if p.PrimaryVideo == nil {
		return 0
	}
	num, den, ok := strings.Cut(p.PrimaryVideo.AvgFrameRate, "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil || n <= 0 {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil || d <= 0 {
		return 0
	}
	return n / d
}

// Resolution returns "WxH" for the primary video stream, or "unknown".
func (p *ProbeResult) Resolution() string {
	if p.PrimaryVideo == nil || p.PrimaryVideo.Width <= 0 || p.PrimaryVideo.Height <= 0 {
		return "unknown"
	}
	return strconv.Itoa(p.PrimaryVideo.Width) + "x" + strconv.Itoa(p.PrimaryVideo.Height)
}

// IsHDR reports HDR color metadata on the primary video stream:
// smpte2084/arib-std-b67 transfer or bt2020 primaries.
func (p *ProbeResult) IsHDR() bool {
	if p.PrimaryVideo == nil {
		return false
	}
	switch p.PrimaryVideo.ColorTransfer {
	case "smpte2084", "arib-std-b67":
		return true
	}
	return p.PrimaryVideo.ColorPrimaries == "bt2020"
}

// IsInterlaced returns true if the primary video stream's field_order
// indicates interlaced content (tt, bb, tb, bt).
func (p *ProbeResult) IsInterlaced() bool {
	if p.PrimaryVideo == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(p.PrimaryVideo.FieldOrder)) {
	case "tt", "bb", "tb", "bt":
		return true
	}
	return false
}

// ClipMetadata converts the probe result into task ingest metadata.
func (p *ProbeResult) ClipMetadata() jobs.ClipMetadata {
	m := jobs.ClipMetadata{
		DurationSeconds: p.Format.Duration,
		SizeBytes:       p.Format.Size,
		Timecode:        p.Timecode,
		Reel:            p.Reel,
		FrameRate:       p.FrameRate(),
		HDR:             p.IsHDR(),
		Interlaced:      p.IsInterlaced(),
	}
	if v := p.PrimaryVideo; v != nil {
		m.Width, m.Height, m.Codec = v.Width, v.Height, v.Codec
	}
	if len(p.AudioStreams) > 0 {
		m.AudioChannels = p.AudioStreams[0].Channels
		m.AudioSampleRate = p.AudioStreams[0].SampleRate
	}
	return m
}

// IngestWarnings describes source traits the presets do not handle, for
// recording on the task at creation.
func IngestWarnings(m jobs.ClipMetadata) []string {
	var w []string
	if m.Interlaced {
		w = append(w, "interlaced source; output is not deinterlaced")
	}
	if m.HDR {
		w = append(w, "HDR source; output is not tone-mapped")
	}
	return w
}
