package ffmpeg

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/vidcompress/internal/media"
	"github.com/maauso/vidcompress/internal/platform"
)

// ExtractThumbnail implements platform.Platform. The frame is written to
// stdout as a single MJPEG image.
func (p *Platform) ExtractThumbnail(ctx context.Context, req platform.ThumbnailRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", platform.ErrInvocation, err)
	}

	out, err := run(ctx, p.ffmpegPath, thumbnailArgs(req, p.logLevelArg()))
	if err != nil {
		var execErr *Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("extract thumbnail: %w: %w", media.ErrCorruptMedia, err)
		}
		return nil, fmt.Errorf("extract thumbnail: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("extract thumbnail: %w: no frame at %dms", platform.ErrInvocation, req.PositionMs)
	}
	return out, nil
}

func thumbnailArgs(req platform.ThumbnailRequest, logLevel string) []string {
	args := []string{"-hide_banner", "-loglevel", logLevel}
	if req.PositionMs > 0 {
		// Seek before the input for a fast keyframe seek
		args = append(args, "-ss", formatSeconds(req.PositionMs))
	}
	args = append(args,
		"-i", req.Path,
		"-frames:v", "1",
		"-q:v", fmt.Sprintf("%d", jpegQScale(req.Quality)),
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	return args
}

// jpegQScale maps quality 1..100 onto ffmpeg's mjpeg -q:v scale 31..2,
// where lower is better.
func jpegQScale(quality int) int {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return 2 + (100-quality)*29/99
}

// formatSeconds renders milliseconds the way ffmpeg's -ss and -t expect.
func formatSeconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}
