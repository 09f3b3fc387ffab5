// Package platform defines the boundary to the native multimedia framework
// that performs probing, thumbnail extraction and encoding.
// Implementations live outside this package (see internal/ffmpeg).
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/vidcompress/internal/media"
)

// Static errors for the platform boundary.
var (
	// ErrInvocation is returned when the platform call itself cannot be made,
	// for example because the native binary is missing or arguments are rejected.
	ErrInvocation = errors.New("platform: native invocation failed")
	// ErrCancelled is returned by Encode when the job ended because of Cancel.
	ErrCancelled = errors.New("platform: encode cancelled")
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("platform: invalid request")
)

// ProgressFunc receives the completed fraction (0.0 to 1.0) of an active encode.
// It is called from the goroutine running the encode.
type ProgressFunc func(fraction float64)

// Platform is the native multimedia framework as seen by the application.
type Platform interface {
	// ProbeMedia reads raw metadata. Dimensions are reported as stored,
	// without applying the orientation.
	ProbeMedia(ctx context.Context, path string) (media.Info, error)

	// ExtractThumbnail returns a JPEG frame taken at the requested position.
	ExtractThumbnail(ctx context.Context, req ThumbnailRequest) ([]byte, error)

	// Encode runs a compression job and returns the metadata of the output.
	// A failure of the encoder itself is reported as *EncodeError, a job
	// stopped by Cancel as ErrCancelled.
	Encode(ctx context.Context, req EncodeRequest, onProgress ProgressFunc) (media.Info, error)

	// Cancel asks the active encode, if any, to stop. It does not wait.
	Cancel()

	// ClearCache removes files the platform created on its own behalf.
	// The boolean reports whether anything was cleared.
	ClearCache(ctx context.Context) (bool, error)

	// SetLogLevel adjusts the verbosity of the platform's own logging.
	SetLogLevel(level int)
}

// EncodeError reports that the native encoder ran but did not produce output.
type EncodeError struct {
	Source string
	Reason string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform: encode %s failed: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("platform: encode %s failed: %s", e.Source, e.Reason)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// ThumbnailRequest selects the frame and JPEG quality of a thumbnail.
type ThumbnailRequest struct {
	// Path is the source video.
	Path string
	// Quality ranges from 1 (smallest) to 100 (best).
	Quality int
	// PositionMs is the timestamp of the frame; negative means "let the platform pick".
	PositionMs int64
}

// Validate checks the request bounds.
func (r ThumbnailRequest) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	if r.Quality < 1 || r.Quality > 100 {
		return fmt.Errorf("%w: quality must be within 1..100, got %d", ErrInvalidRequest, r.Quality)
	}
	return nil
}
