package preset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const presetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["presets"],
  "additionalProperties": false,
  "properties": {
    "presets": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "video_codec", "container"],
        "additionalProperties": false,
        "properties": {
          "id":            {"type": "string", "pattern": "^[a-z0-9][a-z0-9._-]*$"},
          "video_codec":   {"enum": ["h264", "hevc", "prores", "dnxhr", "vp9"]},
          "container":     {"enum": ["mp4", "mov", "mkv", "mxf", "webm"]},
          "quality":       {"type": "integer", "minimum": 0, "maximum": 63},
          "video_bitrate": {"type": "string"},
          "profile":       {"type": "string"},
          "scale": {
            "type": "object",
            "required": ["mode"],
            "additionalProperties": false,
            "properties": {
              "mode":   {"enum": ["none", "fit", "exact"]},
              "width":  {"type": "integer", "minimum": 1},
              "height": {"type": "integer", "minimum": 1}
            }
          },
          "audio": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "codec":   {"enum": ["aac", "pcm", "opus", "copy", "none"]},
              "bitrate": {"type": "string"}
            }
          },
          "watermark": {"type": "string"}
        }
      }
    }
  }
}`

// presetFile is the on-disk layout of a preset file.
type presetFile struct {
	Presets []filePreset `json:"presets"`
}

type filePreset struct {
	ID           string `json:"id"`
	VideoCodec   string `json:"video_codec"`
	Container    string `json:"container"`
	Quality      int    `json:"quality"`
	VideoBitrate string `json:"video_bitrate"`
	Profile      string `json:"profile"`
	Scale        *struct {
		Mode   string `json:"mode"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"scale"`
	Audio *struct {
		Codec   string `json:"codec"`
		Bitrate string `json:"bitrate"`
	} `json:"audio"`
	Watermark string `json:"watermark"`
}

func (fp filePreset) params() ResolvedParams {
	p := ResolvedParams{
		PresetID:     fp.ID,
		VideoCodec:   VideoCodec(fp.VideoCodec),
		Container:    Container(fp.Container),
		Quality:      fp.Quality,
		VideoBitrate: fp.VideoBitrate,
		CodecProfile: fp.Profile,
		ScaleMode:    ScaleNone,
		AudioCodec:   AudioAAC,
		Watermark:    fp.Watermark,
	}
	if fp.Scale != nil {
		p.ScaleMode = ScaleMode(fp.Scale.Mode)
		p.TargetWidth = fp.Scale.Width
		p.TargetHeight = fp.Scale.Height
	}
	if fp.Audio != nil {
		if fp.Audio.Codec != "" {
			p.AudioCodec = AudioCodec(fp.Audio.Codec)
		}
		p.AudioBitrate = fp.Audio.Bitrate
	}
	return p
}

// compileSchema compiles the embedded preset schema.
func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("presets.json", strings.NewReader(presetSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("presets.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ParsePresets validates data against the preset schema and converts each
// entry into ResolvedParams. Semantic checks (Validate) run after the schema.
func ParsePresets(data []byte) ([]ResolvedParams, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse preset JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("preset file does not match schema: %w", err)
	}

	var pf presetFile
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	out := make([]ResolvedParams, 0, len(pf.Presets))
	seen := make(map[string]bool, len(pf.Presets))
	for _, fp := range pf.Presets {
		if seen[fp.ID] {
			return nil, fmt.Errorf("duplicate preset id %q", fp.ID)
		}
		seen[fp.ID] = true
		p := fp.params()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFile reads a preset file and registers every preset in c.
// It returns the ids that were added.
func LoadFile(c *Catalog, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}
	presets, err := ParsePresets(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ids := make([]string, 0, len(presets))
	for _, p := range presets {
		if err := c.Add(p); err != nil {
			return nil, err
		}
		ids = append(ids, p.PresetID)
	}
	return ids, nil
}
