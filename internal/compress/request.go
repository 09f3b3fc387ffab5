package compress

import (
	"fmt"

	"github.com/maauso/vidcompress/internal/media"
	"github.com/maauso/vidcompress/internal/platform"
)

// Request describes one compression. It is consumed once by the Orchestrator.
type Request struct {
	SourcePath string
	OutputPath string
	// Quality selects a preset; ignored when Explicit is set.
	Quality platform.Quality
	// StartTimeMs trims the start of the source when set.
	StartTimeMs *int64
	// DurationMs limits the output length when set.
	DurationMs *int64
	// IncludeAudio keeps the audio track; nil means keep.
	IncludeAudio *bool
	// FrameRate is the output frame rate; 0 keeps the source rate.
	FrameRate int
	// DeleteOriginal removes the source after a successful compression.
	DeleteOriginal bool
	// CheckSize probes the source first and skips compression when the
	// policy finds it already small.
	CheckSize bool
	// Explicit switches to the explicit encoder parameter set.
	Explicit *platform.ExplicitParams
	// PushToS3 uploads the output after a successful compression.
	PushToS3 bool
}

func (r Request) validate() error {
	if r.SourcePath == "" || r.OutputPath == "" {
		return fmt.Errorf("%w: source and output paths are required", platform.ErrInvalidRequest)
	}
	if r.Explicit == nil && r.Quality != "" && !r.Quality.IsValid() {
		return fmt.Errorf("%w: unknown quality %q", platform.ErrInvalidRequest, r.Quality)
	}
	return nil
}

func (r Request) quality() platform.Quality {
	if r.Quality == "" {
		return platform.QualityDefault
	}
	return r.Quality
}

// needsSourceInfo reports whether the encode request depends on probed metadata.
func (r Request) needsSourceInfo() bool {
	return r.Explicit == nil && r.quality().IsLowResolution()
}

// encodeRequest builds the platform variant for r. source may be nil when
// the source was not probed.
func (r Request) encodeRequest(source *media.Info, lowResFactor float64) platform.EncodeRequest {
	if r.Explicit != nil {
		includeAudio := r.IncludeAudio == nil || *r.IncludeAudio
		return platform.ExplicitEncode{
			Source:         r.SourcePath,
			Output:         r.OutputPath,
			DeleteOriginal: r.DeleteOriginal,
			StartTimeMs:    r.StartTimeMs,
			DurationMs:     r.DurationMs,
			IncludeAudio:   includeAudio,
			FrameRate:      r.FrameRate,
			Params:         *r.Explicit,
		}
	}

	enc := platform.PresetEncode{
		Source:         r.SourcePath,
		Output:         r.OutputPath,
		Quality:        r.quality(),
		DeleteOriginal: r.DeleteOriginal,
		StartTimeMs:    r.StartTimeMs,
		DurationMs:     r.DurationMs,
		IncludeAudio:   r.IncludeAudio,
		FrameRate:      r.FrameRate,
	}
	if enc.Quality.IsLowResolution() && source != nil {
		enc.Bitrate = LowResolutionBitrate(source.Bitrate, lowResFactor)
	}
	return enc
}
