package platform

import (
	"fmt"
	"strings"
)

// Quality selects one of the platform's compression presets.
type Quality string

// Known quality presets.
const (
	QualityDefault   Quality = "default"
	QualityLow       Quality = "low"
	QualityMedium    Quality = "medium"
	QualityHighest   Quality = "highest"
	Quality640x480   Quality = "640x480"
	Quality960x540   Quality = "960x540"
	Quality1280x720  Quality = "1280x720"
	Quality1920x1080 Quality = "1920x1080"
)

// Qualities lists every known preset.
func Qualities() []Quality {
	return []Quality{
		QualityDefault, QualityLow, QualityMedium, QualityHighest,
		Quality640x480, Quality960x540, Quality1280x720, Quality1920x1080,
	}
}

// ParseQuality converts a preset name. An empty string yields QualityDefault.
func ParseQuality(s string) (Quality, error) {
	if s == "" {
		return QualityDefault, nil
	}
	q := Quality(strings.ToLower(s))
	if !q.IsValid() {
		return "", fmt.Errorf("%w: unknown quality %q", ErrInvalidRequest, s)
	}
	return q, nil
}

// IsValid returns true if q is a known preset.
func (q Quality) IsValid() bool {
	for _, known := range Qualities() {
		if q == known {
			return true
		}
	}
	return false
}

// IsLowResolution reports whether the preset runs the encoder in
// low-resolution mode, where the target bitrate is derived from the source.
func (q Quality) IsLowResolution() bool {
	return q == QualityLow
}

// EncodeRequest is one of PresetEncode or ExplicitEncode.
// The set is closed: only types in this package implement it.
type EncodeRequest interface {
	// SourcePath returns the file being compressed.
	SourcePath() string
	// OutputPath returns the file the encoder writes.
	OutputPath() string

	isEncodeRequest()
}

// PresetEncode compresses using a quality preset.
type PresetEncode struct {
	Source         string
	Output         string
	Quality        Quality
	DeleteOriginal bool
	// StartTimeMs trims the beginning of the source when set.
	StartTimeMs *int64
	// DurationMs limits the length of the output when set.
	DurationMs *int64
	// IncludeAudio keeps the audio track; nil means the platform default (keep).
	IncludeAudio *bool
	// FrameRate is the output frame rate; 0 keeps the source rate.
	FrameRate int
	// Bitrate overrides the preset's video bitrate in bits/s; 0 keeps the preset.
	Bitrate int64
}

// SourcePath implements EncodeRequest.
func (r PresetEncode) SourcePath() string { return r.Source }

// OutputPath implements EncodeRequest.
func (r PresetEncode) OutputPath() string { return r.Output }

func (PresetEncode) isEncodeRequest() {}

// ExplicitParams carries the explicit encoder parameter set.
type ExplicitParams struct {
	// Bitrate is the video bitrate in bits/s.
	Bitrate int64 `json:"bitrate" validate:"required,min=1"`
	// MaxSize bounds the longer edge of the output in pixels.
	MaxSize int `json:"max_size" validate:"required,min=16"`
	// KeyFrameInterval is the distance between key frames in seconds.
	KeyFrameInterval int `json:"key_frame_interval" validate:"min=0"`
	// AudioChannels is the number of output audio channels.
	AudioChannels int `json:"audio_channels" validate:"min=0,max=8"`
	// AudioBitrate is the audio bitrate in bits/s.
	AudioBitrate int `json:"audio_bitrate" validate:"min=0"`
	// AudioSampleRate is the audio sample rate in Hz.
	AudioSampleRate int `json:"audio_sample_rate" validate:"min=0"`
}

// ExplicitEncode compresses using an explicit parameter set.
type ExplicitEncode struct {
	Source         string
	Output         string
	DeleteOriginal bool
	StartTimeMs    *int64
	DurationMs     *int64
	IncludeAudio   bool
	FrameRate      int
	Params         ExplicitParams
}

// SourcePath implements EncodeRequest.
func (r ExplicitEncode) SourcePath() string { return r.Source }

// OutputPath implements EncodeRequest.
func (r ExplicitEncode) OutputPath() string { return r.Output }

func (ExplicitEncode) isEncodeRequest() {}
