package compress

import (
	"math"

	"github.com/maauso/vidcompress/internal/media"
)

// DefaultLowResBitrateFactor divides the source bitrate in low-resolution mode.
const DefaultLowResBitrateFactor = 5.5

// ShouldCompress reports whether compressing info would shrink it.
// Frames that are small in both orientations are left alone so they are not
// re-encoded or upscaled. Unknown dimensions always compress.
func ShouldCompress(info media.Info) bool {
	if !info.HasDimensions() {
		return true
	}
	w, h := info.Width, info.Height
	return (w > 1100 && h > 640) || (h > 1100 && w > 640)
}

// LowResolutionBitrate returns floor(base / factor). A non-positive factor
// falls back to DefaultLowResBitrateFactor; a non-positive base yields 0.
func LowResolutionBitrate(base int64, factor float64) int64 {
	if base <= 0 {
		return 0
	}
	if factor <= 0 {
		factor = DefaultLowResBitrateFactor
	}
	return int64(math.Floor(float64(base) / factor))
}
