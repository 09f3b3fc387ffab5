// Package bootstrap provides dependency initialization for the compression service.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maauso/vidcompress/internal/compress"
	"github.com/maauso/vidcompress/internal/config"
	"github.com/maauso/vidcompress/internal/ffmpeg"
	"github.com/maauso/vidcompress/internal/job"
	"github.com/maauso/vidcompress/internal/media"
	"github.com/maauso/vidcompress/internal/platform"
	"github.com/maauso/vidcompress/internal/progress"
	"github.com/maauso/vidcompress/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Orchestrator *compress.Orchestrator
	Platform     platform.Platform
	Prober       *media.Prober
	Storage      storage.Storage
	Progress     *progress.Broadcaster

	closers []func() error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	presets, err := ffmpeg.LoadPresets(cfg.QualityPresetsFile)
	if err != nil {
		return nil, fmt.Errorf("load quality presets: %w", err)
	}
	if cfg.QualityPresetsFile != "" {
		logger.Info("quality presets loaded", slog.String("file", cfg.QualityPresetsFile))
	}

	plat := ffmpeg.New(
		ffmpeg.WithFFmpegPath(cfg.FFmpegPath),
		ffmpeg.WithFFprobePath(cfg.FFprobePath),
		ffmpeg.WithPresets(presets),
		ffmpeg.WithCache(store),
		ffmpeg.WithLogger(logger),
	)
	prober := media.NewProber(plat, logger)

	deps := &Dependencies{
		Platform: plat,
		Prober:   prober,
		Storage:  store,
		Progress: progress.NewBroadcaster(0),
	}

	repo, err := deps.initRepository(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps.Orchestrator = compress.NewOrchestrator(
		plat,
		prober,
		compress.WithGuard(job.NewGuard()),
		compress.WithBroadcaster(deps.Progress),
		compress.WithRepository(repo),
		compress.WithUploader(store),
		compress.WithLogger(logger),
		compress.WithLowResFactor(cfg.LowResBitrateFactor),
		compress.WithJobTimeout(cfg.JobTimeout),
	)

	return deps, nil
}

// Close releases resources opened by NewDependencies.
func (d *Dependencies) Close() error {
	d.Progress.Close()
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initRepository creates the job history store selected by JOB_STORE.
func (d *Dependencies) initRepository(cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if strings.EqualFold(cfg.JobStore, config.JobStoreSQLite) {
		repo, err := job.NewSQLRepository(cfg.JobDBPath)
		if err != nil {
			return nil, fmt.Errorf("create job repository: %w", err)
		}
		d.closers = append(d.closers, repo.Close)
		logger.Info("sqlite job history configured", slog.String("path", cfg.JobDBPath))
		return repo, nil
	}

	logger.Info("in-memory job history configured")
	return job.NewMemoryRepository(), nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("temp_dir", s3Store.TempDir()),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}
