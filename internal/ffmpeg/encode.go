package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/maauso/vidcompress/internal/media"
	"github.com/maauso/vidcompress/internal/platform"
)

// Encode implements platform.Platform. The output is written to a temporary
// file next to the destination and renamed once ffmpeg succeeds.
func (p *Platform) Encode(ctx context.Context, req platform.EncodeRequest, onProgress platform.ProgressFunc) (media.Info, error) {
	if err := validateEncode(req); err != nil {
		return media.Info{}, fmt.Errorf("%w: %w", platform.ErrInvocation, err)
	}

	src, dst := req.SourcePath(), req.OutputPath()

	// Register before ffprobe runs so a Cancel while reading the source is not lost.
	run := p.beginEncode(ctx)
	defer p.endEncode(run)

	source, err := p.ProbeMedia(run.ctx, src)
	if err != nil {
		if cerr := cancelErr(ctx, run); cerr != nil {
			return media.Info{}, cerr
		}
		if errors.Is(err, platform.ErrInvocation) {
			return media.Info{}, err
		}
		return media.Info{}, &platform.EncodeError{Source: src, Reason: "probe source", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return media.Info{}, fmt.Errorf("%w: create output directory: %w", platform.ErrInvocation, err)
	}

	tmpPath := dst + ".part.mp4"
	_ = os.Remove(tmpPath)

	args := p.encodeArgs(req, source, tmpPath)

	runErr := p.runWithProgress(run.ctx, args, expectedDurationMs(req, source), onProgress)
	if cerr := cancelErr(ctx, run); cerr != nil {
		_ = os.Remove(tmpPath)
		return media.Info{}, cerr
	}
	if runErr != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(runErr, platform.ErrInvocation) {
			return media.Info{}, runErr
		}
		return media.Info{}, &platform.EncodeError{Source: src, Reason: "ffmpeg exited", Err: runErr}
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return media.Info{}, &platform.EncodeError{Source: src, Reason: "move output", Err: err}
	}

	if deleteOriginal(req) && src != dst {
		if err := os.Remove(src); err != nil {
			p.logger.Warn("failed to delete original",
				slog.String("path", src),
				slog.String("error", err.Error()),
			)
		}
	}

	info, err := p.ProbeMedia(ctx, dst)
	if err != nil {
		return media.Info{}, &platform.EncodeError{Source: src, Reason: "probe output", Err: err}
	}
	return info, nil
}

// cancelErr reports why run stopped early: platform.ErrCancelled for
// Cancel, the caller's context error otherwise, nil if neither happened.
func cancelErr(ctx context.Context, run *encodeRun) error {
	switch {
	case run.cancelled.Load():
		return platform.ErrCancelled
	case ctx.Err() != nil:
		return fmt.Errorf("ffmpeg cancelled: %w", context.Cause(ctx))
	}
	return nil
}

// runWithProgress runs ffmpeg and streams its -progress output.
func (p *Platform) runWithProgress(ctx context.Context, args []string, totalMs int64, onProgress platform.ProgressFunc) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %w", platform.ErrInvocation, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %w", platform.ErrInvocation, p.ffmpegPath, err)
	}

	reader := newProgressReader(totalMs)
	if err := reader.stream(stdout, onProgress); err != nil {
		p.logger.Warn("progress stream interrupted", slog.String("error", err.Error()))
	}

	if err := cmd.Wait(); err != nil {
		return &Error{
			Binary: p.ffmpegPath,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

func (p *Platform) encodeArgs(req platform.EncodeRequest, source media.Info, output string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", p.logLevelArg(),
		"-nostats",
		"-progress", "pipe:1",
	}

	switch r := req.(type) {
	case platform.PresetEncode:
		preset := p.presets.Lookup(r.Quality)
		args = appendInput(args, r.Source, r.StartTimeMs, r.DurationMs)
		includeAudio := r.IncludeAudio == nil || *r.IncludeAudio
		args = appendMaps(args, includeAudio)
		args = append(args, "-c:v", "libx264", "-preset", "veryfast")
		if r.Bitrate > 0 {
			args = appendBitrate(args, r.Bitrate)
		} else {
			args = append(args, "-crf", strconv.Itoa(preset.CRF))
		}
		if preset.LongEdge > 0 && preset.ShortEdge > 0 {
			args = append(args, "-vf", scaleFilter(preset.LongEdge, preset.ShortEdge))
		}
		if r.FrameRate > 0 {
			args = append(args, "-r", strconv.Itoa(r.FrameRate))
		}
		if includeAudio {
			args = append(args, "-c:a", "aac", "-b:a", strconv.Itoa(preset.AudioBitrate))
		}
	case platform.ExplicitEncode:
		args = appendInput(args, r.Source, r.StartTimeMs, r.DurationMs)
		args = appendMaps(args, r.IncludeAudio)
		args = append(args, "-c:v", "libx264", "-preset", "veryfast")
		args = appendBitrate(args, r.Params.Bitrate)
		args = append(args, "-vf", scaleFilter(r.Params.MaxSize, r.Params.MaxSize))
		if r.FrameRate > 0 {
			args = append(args, "-r", strconv.Itoa(r.FrameRate))
		}
		if r.Params.KeyFrameInterval > 0 {
			args = append(args, "-g", strconv.Itoa(r.Params.KeyFrameInterval*gopFrameRate(r.FrameRate)))
		}
		if r.IncludeAudio {
			args = append(args, "-c:a", "aac")
			if r.Params.AudioBitrate > 0 {
				args = append(args, "-b:a", strconv.Itoa(r.Params.AudioBitrate))
			}
			if r.Params.AudioChannels > 0 {
				args = append(args, "-ac", strconv.Itoa(r.Params.AudioChannels))
			}
			if r.Params.AudioSampleRate > 0 {
				args = append(args, "-ar", strconv.Itoa(r.Params.AudioSampleRate))
			}
		}
	}

	args = append(args, "-pix_fmt", "yuv420p", "-movflags", "+faststart", "-f", "mp4", output)
	return args
}

func appendInput(args []string, src string, startMs, durationMs *int64) []string {
	if startMs != nil && *startMs > 0 {
		args = append(args, "-ss", formatSeconds(*startMs))
	}
	args = append(args, "-i", src)
	if durationMs != nil && *durationMs > 0 {
		args = append(args, "-t", formatSeconds(*durationMs))
	}
	return args
}

func appendMaps(args []string, includeAudio bool) []string {
	args = append(args, "-map", "0:v:0")
	if includeAudio {
		return append(args, "-map", "0:a:0?")
	}
	return append(args, "-an")
}

func appendBitrate(args []string, bitrate int64) []string {
	b := strconv.FormatInt(bitrate, 10)
	return append(args, "-b:v", b, "-maxrate", b, "-bufsize", strconv.FormatInt(bitrate*2, 10))
}

// scaleFilter fits the frame inside a long x short box in either orientation,
// never upscaling and keeping both sides even.
func scaleFilter(long, short int) string {
	return fmt.Sprintf(
		"scale=w='if(gte(iw,ih),min(%[1]d,iw),min(%[2]d,iw))':h='if(gte(iw,ih),min(%[2]d,ih),min(%[1]d,ih))':force_original_aspect_ratio=decrease:force_divisible_by=2",
		long, short,
	)
}

// gopFrameRate is the frame rate used to turn a key frame interval in seconds
// into a GOP length.
func gopFrameRate(frameRate int) int {
	if frameRate > 0 {
		return frameRate
	}
	return 30
}

// expectedDurationMs is the length of the output, used for progress.
func expectedDurationMs(req platform.EncodeRequest, source media.Info) int64 {
	var startMs, durationMs *int64
	switch r := req.(type) {
	case platform.PresetEncode:
		startMs, durationMs = r.StartTimeMs, r.DurationMs
	case platform.ExplicitEncode:
		startMs, durationMs = r.StartTimeMs, r.DurationMs
	}

	total := source.DurationMs
	if startMs != nil && *startMs > 0 {
		total -= *startMs
	}
	if durationMs != nil && *durationMs > 0 && *durationMs < total {
		total = *durationMs
	}
	if total < 0 {
		return 0
	}
	return total
}

func deleteOriginal(req platform.EncodeRequest) bool {
	switch r := req.(type) {
	case platform.PresetEncode:
		return r.DeleteOriginal
	case platform.ExplicitEncode:
		return r.DeleteOriginal
	}
	return false
}

func validateEncode(req platform.EncodeRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil encode request", platform.ErrInvalidRequest)
	}
	if req.SourcePath() == "" || req.OutputPath() == "" {
		return fmt.Errorf("%w: source and output paths are required", platform.ErrInvalidRequest)
	}
	if filepath.Clean(req.SourcePath()) == filepath.Clean(req.OutputPath()) {
		return fmt.Errorf("%w: output must differ from source", platform.ErrInvalidRequest)
	}
	switch r := req.(type) {
	case platform.PresetEncode:
		if !r.Quality.IsValid() {
			return fmt.Errorf("%w: unknown quality %q", platform.ErrInvalidRequest, r.Quality)
		}
	case platform.ExplicitEncode:
		if r.Params.Bitrate <= 0 || r.Params.MaxSize <= 0 {
			return fmt.Errorf("%w: bitrate and max size must be positive", platform.ErrInvalidRequest)
		}
	}
	return nil
}
