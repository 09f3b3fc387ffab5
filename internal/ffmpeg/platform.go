// Package ffmpeg implements the native platform boundary on top of the
// ffmpeg and ffprobe command line tools.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/maauso/vidcompress/internal/platform"
)

// Compile-time check that Platform implements platform.Platform.
var _ platform.Platform = (*Platform)(nil)

// defaultLogLevel is ffmpeg's numeric "error" level.
const defaultLogLevel = 16

// Cache is the storage the platform writes derived files to.
type Cache interface {
	// ClearTemp removes every cached file and returns how many were removed.
	ClearTemp(ctx context.Context) (int, error)
}

// Platform drives ffmpeg/ffprobe binaries. Only one encode is expected to
// run at a time; Cancel targets the most recently started one.
type Platform struct {
	ffmpegPath  string
	ffprobePath string
	presets     Presets
	cache       Cache
	logger      *slog.Logger
	logLevel    atomic.Int32

	mu     sync.Mutex
	active *encodeRun
}

// encodeRun is the cancellation handle of one Encode call.
type encodeRun struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Option configures a Platform.
type Option func(*Platform)

// WithFFmpegPath sets the ffmpeg binary. Empty keeps "ffmpeg" from PATH.
func WithFFmpegPath(path string) Option {
	return func(p *Platform) {
		if path != "" {
			p.ffmpegPath = path
		}
	}
}

// WithFFprobePath sets the ffprobe binary. Empty keeps "ffprobe" from PATH.
func WithFFprobePath(path string) Option {
	return func(p *Platform) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithPresets replaces the quality preset table.
func WithPresets(ps Presets) Option {
	return func(p *Platform) {
		if ps != nil {
			p.presets = ps
		}
	}
}

// WithCache sets the cache cleared by ClearCache.
func WithCache(c Cache) Option {
	return func(p *Platform) {
		p.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Platform) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Platform with the given options.
func New(opts ...Option) *Platform {
	p := &Platform{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		presets:     DefaultPresets(),
		logger:      slog.Default(),
	}
	p.logLevel.Store(defaultLogLevel)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cancel stops the running encode, if any. It returns immediately; the
// encode reports platform.ErrCancelled once ffmpeg has exited. The
// ffprobe read of the source that precedes ffmpeg is covered too.
func (p *Platform) Cancel() {
	p.mu.Lock()
	run := p.active
	p.mu.Unlock()
	if run == nil {
		p.logger.Debug("cancel requested with no encode running")
		return
	}
	run.cancelled.Store(true)
	run.cancel()
	p.logger.Info("encode cancellation requested")
}

// ClearCache removes cached derived files.
func (p *Platform) ClearCache(ctx context.Context) (bool, error) {
	if p.cache == nil {
		return false, nil
	}
	n, err := p.cache.ClearTemp(ctx)
	if err != nil {
		return n > 0, fmt.Errorf("clear cache: %w", err)
	}
	p.logger.Info("cache cleared", slog.Int("files", n))
	return n > 0, nil
}

// SetLogLevel sets ffmpeg's numeric -loglevel (e.g. 16 error, 32 info, 48 debug).
func (p *Platform) SetLogLevel(level int) {
	p.logLevel.Store(int32(level))
	p.logger.Debug("ffmpeg log level changed", slog.Int("level", level))
}

func (p *Platform) logLevelArg() string {
	return strconv.Itoa(int(p.logLevel.Load()))
}

// beginEncode registers a new encode as the Cancel target.
func (p *Platform) beginEncode(ctx context.Context) *encodeRun {
	ctx, cancel := context.WithCancel(ctx)
	run := &encodeRun{ctx: ctx, cancel: cancel}
	p.mu.Lock()
	p.active = run
	p.mu.Unlock()
	return run
}

// endEncode unregisters run and reports whether Cancel reached it. A later
// encode that replaced run stays registered.
func (p *Platform) endEncode(run *encodeRun) bool {
	run.cancel()
	p.mu.Lock()
	if p.active == run {
		p.active = nil
	}
	p.mu.Unlock()
	return run.cancelled.Load()
}
