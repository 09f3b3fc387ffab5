package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Static errors for probing.
var (
	// ErrNotFound is returned when the media file does not exist.
	ErrNotFound = errors.New("media: file not found")
	// ErrCorruptMedia is returned when the metadata source cannot read the container.
	ErrCorruptMedia = errors.New("media: cannot parse container")
	// ErrEmptyPath is returned when no path is provided.
	ErrEmptyPath = errors.New("media: path is required")
)

// MetadataSource reads raw metadata from a media file. Implementations
// return dimensions as stored, without applying the orientation.
type MetadataSource interface {
	ProbeMedia(ctx context.Context, path string) (Info, error)
}

// Prober queries a MetadataSource and normalises the result.
// It holds no mutable state and is safe for concurrent use.
type Prober struct {
	source MetadataSource
	logger *slog.Logger
}

// NewProber creates a Prober backed by the given source.
func NewProber(source MetadataSource, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{source: source, logger: logger}
}

// Probe returns the metadata of the file at path with width and height in
// display orientation.
//
// Returns ErrNotFound if the file is absent and ErrCorruptMedia if the
// source cannot parse it.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	if path == "" {
		return Info{}, ErrEmptyPath
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Info{}, fmt.Errorf("stat media: %w", err)
	}

	raw, err := p.source.ProbeMedia(ctx, path)
	if err != nil {
		p.logger.Warn("probe failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			return Info{}, fmt.Errorf("probe cancelled: %w", ctx.Err())
		}
		return Info{}, fmt.Errorf("probe media: %w", err)
	}

	info := raw.Upright()
	if info.Path == "" {
		info.Path = path
	}

	p.logger.Debug("probed media",
		slog.String("path", path),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Int("orientation", info.Orientation),
		slog.Int64("duration_ms", info.DurationMs),
	)

	return info, nil
}
