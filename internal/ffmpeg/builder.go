package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backmassage/clipmaster/internal/preset"
)

// videoCodecArgs maps each supported codec to its encoder arguments.
var videoCodecArgs = map[preset.VideoCodec][]string{
	preset.CodecH264:   {"-c:v", "libx264", "-pix_fmt", "yuv420p"},
	preset.CodecHEVC:   {"-c:v", "libx265", "-pix_fmt", "yuv420p10le"},
	preset.CodecProRes: {"-c:v", "prores_ks", "-pix_fmt", "yuv422p10le"},
	preset.CodecDNxHR:  {"-c:v", "dnxhd", "-pix_fmt", "yuv422p"},
	preset.CodecVP9:    {"-c:v", "libvpx-vp9", "-pix_fmt", "yuv420p"},
}

// crfCodecs accept -crf as a quality target.
var crfCodecs = map[preset.VideoCodec]bool{
	preset.CodecH264: true,
	preset.CodecHEVC: true,
	preset.CodecVP9:  true,
}

var proresProfiles = map[string]string{
	"proxy":    "0",
	"lt":       "1",
	"standard": "2",
	"hq":       "3",
	"4444":     "4",
}

var dnxhrProfiles = map[string]string{
	"lb":  "dnxhr_lb",
	"sq":  "dnxhr_sq",
	"hq":  "dnxhr_hq",
	"hqx": "dnxhr_hqx",
	"444": "dnxhr_444",
}

var x26xProfiles = map[string]string{
	"baseline": "baseline",
	"main":     "main",
	"high":     "high",
	"main10":   "main10",
}

var containerArgs = map[preset.Container][]string{
	preset.ContainerMP4:  {"-movflags", "+faststart", "-f", "mp4"},
	preset.ContainerMOV:  {"-movflags", "+faststart", "-f", "mov"},
	preset.ContainerMKV:  {"-f", "matroska"},
	preset.ContainerMXF:  {"-f", "mxf"},
	preset.ContainerWebM: {"-f", "webm"},
}

var audioCodecArgs = map[preset.AudioCodec][]string{
	preset.AudioAAC:  {"-c:a", "aac"},
	preset.AudioPCM:  {"-c:a", "pcm_s24le"},
	preset.AudioOpus: {"-c:a", "libopus"},
	preset.AudioCopy: {"-c:a", "copy"},
	preset.AudioNone: {"-an"},
}

// SupportsCodec reports whether Build has a mapping for c.
func SupportsCodec(c preset.VideoCodec) bool {
	_, ok := videoCodecArgs[c]
	return ok
}

// EncoderName returns the ffmpeg encoder used for c, or "".
func EncoderName(c preset.VideoCodec) string {
	if args, ok := videoCodecArgs[c]; ok {
		return args[1]
	}
	return ""
}

// Build returns the full argument slice (binary first) that renders input
// into output according to p. The output path is always the last element.
func Build(bin, input, output string, p preset.ResolvedParams) []string {
	args := make([]string, 0, 48)

	// --- Preamble ---
	args = append(args, bin, "-hide_banner", "-nostdin", "-y",
		"-loglevel", "warning", "-stats", "-stats_period", "1")

	// --- Input ---
	args = append(args, "-i", input)

	// --- Stream maps ---
	args = append(args, "-map", "0:v:0")
	if p.AudioCodec != preset.AudioNone {
		args = append(args, "-map", "0:a?")
	}
	args = append(args, "-dn", "-sn")

	// --- Video filter chain ---
	if vf := videoFilters(p); vf != "" {
		args = append(args, "-vf", vf)
	}

	// --- Video codec ---
	args = append(args, videoCodecArgs[p.VideoCodec]...)
	args = appendVideoProfile(args, p)
	args = appendVideoRate(args, p)

	// --- Audio ---
	args = append(args, audioCodecArgs[p.AudioCodec]...)
	if p.AudioBitrate != "" && p.AudioCodec != preset.AudioCopy && p.AudioCodec != preset.AudioNone && p.AudioCodec != preset.AudioPCM {
		args = append(args, "-b:a", p.AudioBitrate)
	}

	// --- Metadata, container, output ---
	args = append(args, "-map_metadata", "0")
	args = append(args, containerArgs[p.Container]...)
	args = append(args, output)
	return args
}

func appendVideoProfile(args []string, p preset.ResolvedParams) []string {
	if p.CodecProfile == "" {
		return args
	}
	profile := strings.ToLower(p.CodecProfile)
	switch p.VideoCodec {
	case preset.CodecProRes:
		if v, ok := proresProfiles[profile]; ok {
			args = append(args, "-profile:v", v)
		}
	case preset.CodecDNxHR:
		if v, ok := dnxhrProfiles[profile]; ok {
			args = append(args, "-profile:v", v)
		}
	case preset.CodecH264, preset.CodecHEVC:
		if v, ok := x26xProfiles[profile]; ok {
			args = append(args, "-profile:v", v)
		}
	}
	return args
}

// appendVideoRate adds the quality or bitrate target. DNxHR with no
// profile falls back to the LB profile because dnxhd rejects free rates.
func appendVideoRate(args []string, p preset.ResolvedParams) []string {
	if p.VideoCodec == preset.CodecDNxHR && p.CodecProfile == "" {
		args = append(args, "-profile:v", dnxhrProfiles["lb"])
	}
	if p.Quality > 0 && crfCodecs[p.VideoCodec] {
		args = append(args, "-crf", strconv.Itoa(p.Quality))
		if p.VideoCodec == preset.CodecVP9 && p.VideoBitrate == "" {
			args = append(args, "-b:v", "0")
		}
	}
	if p.VideoBitrate != "" && p.VideoCodec != preset.CodecProRes && p.VideoCodec != preset.CodecDNxHR {
		args = append(args, "-b:v", p.VideoBitrate)
	}
	return args
}

// videoFilters returns the comma-joined -vf chain for scaling and watermark.
func videoFilters(p preset.ResolvedParams) string {
	var filters []string
	switch p.ScaleMode {
	case preset.ScaleFit:
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", p.TargetWidth, p.TargetHeight),
			"pad=ceil(iw/2)*2:ceil(ih/2)*2")
	case preset.ScaleExact:
		filters = append(filters, fmt.Sprintf("scale=%d:%d", p.TargetWidth, p.TargetHeight))
	}
	if p.Watermark != "" {
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':x=w-tw-20:y=h-th-20:fontsize=h/20:fontcolor=white@0.6:box=1:boxcolor=black@0.3",
			escapeDrawtext(p.Watermark)))
	}
	return strings.Join(filters, ",")
}

// escapeDrawtext escapes characters that are special inside a quoted
// drawtext value and in the filtergraph.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`, `,`, `\,`)
	return r.Replace(s)
}
