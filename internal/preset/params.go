// Package preset turns named encoding presets into the flat ResolvedParams
// value that execution engines consume. Built-in presets cover common proxy
// and delivery formats; additional presets can be loaded from a JSON file.
package preset

import (
	"errors"
	"fmt"
	"regexp"
)

// VideoCodec is the target video codec family.
type VideoCodec string

const (
	CodecH264   VideoCodec = "h264"
	CodecHEVC   VideoCodec = "hevc"
	CodecProRes VideoCodec = "prores"
	CodecDNxHR  VideoCodec = "dnxhr"
	CodecVP9    VideoCodec = "vp9"
)

// Container is the output container; it also determines the file extension.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerMOV  Container = "mov"
	ContainerMKV  Container = "mkv"
	ContainerMXF  Container = "mxf"
	ContainerWebM Container = "webm"
)

// ScaleMode controls how TargetWidth/TargetHeight are applied.
type ScaleMode string

const (
	ScaleNone  ScaleMode = "none"  // Keep source dimensions.
	ScaleFit   ScaleMode = "fit"   // Fit inside the box, keep aspect ratio.
	ScaleExact ScaleMode = "exact" // Stretch to the box.
)

// AudioCodec is the target audio codec; AudioCopy passes the source through.
type AudioCodec string

const (
	AudioAAC  AudioCodec = "aac"
	AudioPCM  AudioCodec = "pcm"
	AudioOpus AudioCodec = "opus"
	AudioCopy AudioCodec = "copy"
	AudioNone AudioCodec = "none"
)

// Capability is a feature an engine must support to run a preset.
type Capability string

const (
	CapTranscode        Capability = "transcode"
	CapScale            Capability = "scale"
	CapWatermark        Capability = "watermark"
	CapAudioPassthrough Capability = "audio-passthrough"
)

// ResolvedParams is the flat, engine-agnostic parameter set for one render.
// It is a plain value: engines receive a copy and never see the preset
// catalog or the configuration it came from.
type ResolvedParams struct {
	PresetID     string     `json:"preset_id"`
	VideoCodec   VideoCodec `json:"video_codec"`
	Container    Container  `json:"container"`
	Quality      int        `json:"quality,omitempty"`       // CRF-style; 0 means bitrate or profile driven.
	VideoBitrate string     `json:"video_bitrate,omitempty"` // e.g. "8M".
	CodecProfile string     `json:"codec_profile,omitempty"` // e.g. "proxy", "lb", "high".
	ScaleMode    ScaleMode  `json:"scale_mode"`
	TargetWidth  int        `json:"target_width,omitempty"`
	TargetHeight int        `json:"target_height,omitempty"`
	AudioCodec   AudioCodec `json:"audio_codec"`
	AudioBitrate string     `json:"audio_bitrate,omitempty"` // e.g. "192k".
	Watermark    string     `json:"watermark,omitempty"`     // Burned-in text; empty disables.
}

var reBitrate = regexp.MustCompile(`^[1-9][0-9]*(\.[0-9]+)?[kKmM]?$`)

// Extension returns the output file extension without the leading dot.
func (p ResolvedParams) Extension() string {
	return string(p.Container)
}

// RequiredCapabilities lists the engine capabilities this parameter set needs.
func (p ResolvedParams) RequiredCapabilities() []Capability {
	caps := []Capability{CapTranscode}
	if p.ScaleMode != ScaleNone && p.ScaleMode != "" {
		caps = append(caps, CapScale)
	}
	if p.Watermark != "" {
		caps = append(caps, CapWatermark)
	}
	if p.AudioCodec == AudioCopy {
		caps = append(caps, CapAudioPassthrough)
	}
	return caps
}

// Validate checks enum fields and the numeric ranges that engines rely on.
func (p ResolvedParams) Validate() error {
	if p.PresetID == "" {
		return errors.New("preset id must not be empty")
	}
	switch p.VideoCodec {
	case CodecH264, CodecHEVC, CodecProRes, CodecDNxHR, CodecVP9:
	default:
		return fmt.Errorf("preset %s: unknown video codec %q", p.PresetID, p.VideoCodec)
	}
	switch p.Container {
	case ContainerMP4, ContainerMOV, ContainerMKV, ContainerMXF, ContainerWebM:
	default:
		return fmt.Errorf("preset %s: unknown container %q", p.PresetID, p.Container)
	}
	switch p.ScaleMode {
	case ScaleNone, "":
	case ScaleFit, ScaleExact:
		if p.TargetWidth <= 0 || p.TargetHeight <= 0 {
			return fmt.Errorf("preset %s: scale mode %s needs positive target dimensions", p.PresetID, p.ScaleMode)
		}
	default:
		return fmt.Errorf("preset %s: unknown scale mode %q", p.PresetID, p.ScaleMode)
	}
	switch p.AudioCodec {
	case AudioAAC, AudioPCM, AudioOpus, AudioCopy, AudioNone:
	default:
		return fmt.Errorf("preset %s: unknown audio codec %q", p.PresetID, p.AudioCodec)
	}
	if p.Quality < 0 || p.Quality > 63 {
		return fmt.Errorf("preset %s: quality %d out of range 0-63", p.PresetID, p.Quality)
	}
	if p.VideoBitrate != "" && !reBitrate.MatchString(p.VideoBitrate) {
		return fmt.Errorf("preset %s: invalid video bitrate %q", p.PresetID, p.VideoBitrate)
	}
	if p.AudioBitrate != "" && !reBitrate.MatchString(p.AudioBitrate) {
		return fmt.Errorf("preset %s: invalid audio bitrate %q", p.PresetID, p.AudioBitrate)
	}
	return nil
}
