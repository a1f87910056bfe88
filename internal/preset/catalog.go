package preset

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownPreset is returned by Resolve for ids not in the catalog.
var ErrUnknownPreset = errors.New("unknown preset")

// Resolver produces the flat parameter set for a preset id.
type Resolver interface {
	Resolve(id string) (ResolvedParams, error)
}

// Catalog is an in-memory Resolver. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	presets map[string]ResolvedParams
}

// NewCatalog returns a catalog seeded with the built-in presets.
func NewCatalog() *Catalog {
	c := &Catalog{presets: make(map[string]ResolvedParams)}
	for _, p := range builtins {
		c.presets[p.PresetID] = p
	}
	return c
}

// Add validates p and registers it, replacing any preset with the same id.
func (c *Catalog) Add(p ResolvedParams) error {
	if p.ScaleMode == "" {
		p.ScaleMode = ScaleNone
	}
	if p.AudioCodec == "" {
		p.AudioCodec = AudioAAC
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presets[p.PresetID] = p
	return nil
}

// Resolve implements Resolver.
func (c *Catalog) Resolve(id string) (ResolvedParams, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presets[id]
	if !ok {
		return ResolvedParams{}, fmt.Errorf("%w %q", ErrUnknownPreset, id)
	}
	return p, nil
}

// IDs returns all preset ids, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.presets))
	for id := range c.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var builtins = []ResolvedParams{
	{
		PresetID:     "h264-proxy",
		VideoCodec:   CodecH264,
		Container:    ContainerMP4,
		Quality:      23,
		ScaleMode:    ScaleFit,
		TargetWidth:  1280,
		TargetHeight: 720,
		AudioCodec:   AudioAAC,
		AudioBitrate: "128k",
	},
	{
		PresetID:     "prores-proxy",
		VideoCodec:   CodecProRes,
		Container:    ContainerMOV,
		CodecProfile: "proxy",
		ScaleMode:    ScaleNone,
		AudioCodec:   AudioPCM,
	},
	{
		PresetID:     "dnxhr-lb",
		VideoCodec:   CodecDNxHR,
		Container:    ContainerMXF,
		CodecProfile: "lb",
		ScaleMode:    ScaleNone,
		AudioCodec:   AudioPCM,
	},
	{
		PresetID:     "hevc-archive",
		VideoCodec:   CodecHEVC,
		Container:    ContainerMKV,
		Quality:      20,
		ScaleMode:    ScaleNone,
		AudioCodec:   AudioCopy,
	},
	{
		PresetID:     "webm-preview",
		VideoCodec:   CodecVP9,
		Container:    ContainerWebM,
		VideoBitrate: "1M",
		ScaleMode:    ScaleFit,
		TargetWidth:  640,
		TargetHeight: 360,
		AudioCodec:   AudioOpus,
		AudioBitrate: "96k",
		Watermark:    "PREVIEW",
	},
}
