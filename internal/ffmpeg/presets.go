package ffmpeg

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maauso/vidcompress/internal/platform"
)

// ErrUnknownPreset is returned when a presets file names an unknown quality.
var ErrUnknownPreset = errors.New("ffmpeg: unknown quality preset")

// Preset describes how a quality is encoded.
type Preset struct {
	// LongEdge bounds the longer side of the output (0 keeps the source size).
	LongEdge int `yaml:"long_edge"`
	// ShortEdge bounds the shorter side of the output (0 keeps the source size).
	ShortEdge int `yaml:"short_edge"`
	// CRF is the x264 constant rate factor used when no bitrate is given.
	CRF int `yaml:"crf"`
	// AudioBitrate is the AAC bitrate in bits/s.
	AudioBitrate int `yaml:"audio_bitrate"`
}

// Presets maps each quality to its encoder settings.
type Presets map[platform.Quality]Preset

// DefaultPresets returns the built-in preset table.
func DefaultPresets() Presets {
	return Presets{
		platform.QualityDefault:   {LongEdge: 1280, ShortEdge: 720, CRF: 26, AudioBitrate: 128000},
		platform.QualityLow:       {LongEdge: 640, ShortEdge: 360, CRF: 30, AudioBitrate: 64000},
		platform.QualityMedium:    {LongEdge: 960, ShortEdge: 540, CRF: 28, AudioBitrate: 96000},
		platform.QualityHighest:   {CRF: 20, AudioBitrate: 192000},
		platform.Quality640x480:   {LongEdge: 640, ShortEdge: 480, CRF: 23, AudioBitrate: 96000},
		platform.Quality960x540:   {LongEdge: 960, ShortEdge: 540, CRF: 23, AudioBitrate: 128000},
		platform.Quality1280x720:  {LongEdge: 1280, ShortEdge: 720, CRF: 23, AudioBitrate: 128000},
		platform.Quality1920x1080: {LongEdge: 1920, ShortEdge: 1080, CRF: 23, AudioBitrate: 192000},
	}
}

// Lookup returns the preset for q, falling back to the default quality.
func (ps Presets) Lookup(q platform.Quality) Preset {
	if p, ok := ps[q]; ok {
		return p
	}
	return ps[platform.QualityDefault]
}

// LoadPresets reads preset overrides from a YAML file and merges them over
// the built-in table. Only the qualities present in the file are replaced.
//
// Example file:
//
//	low:
//	  long_edge: 480
//	  short_edge: 270
//	  crf: 32
//	  audio_bitrate: 48000
func LoadPresets(path string) (Presets, error) {
	presets := DefaultPresets()
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}

	var overrides map[string]Preset
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse presets file: %w", err)
	}

	for name, preset := range overrides {
		q, err := platform.ParseQuality(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
		}
		presets[q] = preset
	}

	return presets, nil
}
