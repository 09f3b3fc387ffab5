// Package server provides the HTTP API of the compression service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/vidcompress/internal/job"
	"github.com/maauso/vidcompress/internal/media"
	"github.com/maauso/vidcompress/internal/platform"
	"github.com/maauso/vidcompress/internal/progress"
)

// CompressRequest is the HTTP request body for starting a compression.
type CompressRequest struct {
	// SourcePath is the video to compress.
	SourcePath string `json:"path" validate:"required"`
	// OutputPath is where the compressed video is written.
	OutputPath string `json:"output_path" validate:"required,nefield=SourcePath"`
	// Quality selects a preset; empty means default.
	Quality string `json:"quality" validate:"omitempty,oneof=default low medium highest 640x480 960x540 1280x720 1920x1080"`
	// StartTimeMs trims the start of the source.
	StartTimeMs *int64 `json:"start_time_ms" validate:"omitempty,min=0"`
	// DurationMs limits the output length.
	DurationMs *int64 `json:"duration_ms" validate:"omitempty,min=1"`
	// IncludeAudio keeps the audio track; omitted means keep.
	IncludeAudio *bool `json:"include_audio"`
	// FrameRate is the output frame rate; 0 keeps the source rate.
	FrameRate int `json:"frame_rate" validate:"min=0,max=240"`
	// DeleteOriginal removes the source after success.
	DeleteOriginal bool `json:"delete_original"`
	// CheckSize skips sources that are already small.
	CheckSize bool `json:"check_size"`
	// Explicit switches to the explicit encoder parameter set.
	Explicit *platform.ExplicitParams `json:"explicit,omitempty"`
	// PushToS3 uploads the output to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CompressResponse is the HTTP response after submitting a compression.
type CompressResponse struct {
	// ID is the job identifier.
	ID string `json:"id"`
	// Status is the job status at submission time.
	Status string `json:"status"`
	// Output is the probed source when the request was skipped.
	Output *media.Info `json:"output,omitempty"`
}

// JobResponse is the HTTP response for a recorded compression job.
type JobResponse struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Progress    int         `json:"progress"`
	Error       string      `json:"error,omitempty"`
	SourcePath  string      `json:"path"`
	OutputPath  string      `json:"output_path"`
	Quality     string      `json:"quality,omitempty"`
	Output      *media.Info `json:"output,omitempty"`
	VideoURL    string      `json:"video_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// JobListResponse is the HTTP response for the job history.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ThumbnailFileRequest is the HTTP request body for writing a thumbnail file.
type ThumbnailFileRequest struct {
	// Path is the source video.
	Path string `json:"path" validate:"required"`
	// Quality is the JPEG quality, 1..100.
	Quality int `json:"quality" validate:"required,min=1,max=100"`
	// PositionMs is the frame timestamp.
	PositionMs int64 `json:"position_ms" validate:"min=0"`
}

// ThumbnailFileResponse is the HTTP response with the written thumbnail path.
type ThumbnailFileResponse struct {
	Path string `json:"path"`
}

// ClearCacheResponse reports whether anything was removed.
type ClearCacheResponse struct {
	Cleared bool `json:"cleared"`
}

// LogLevelRequest changes the encoder log level and, optionally, the
// service log level.
type LogLevelRequest struct {
	// Level is the ffmpeg numeric log level (-8 quiet .. 56 trace).
	Level *int `json:"level" validate:"required,min=-8,max=56"`
	// AppLevel is the service log level.
	AppLevel string `json:"app_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// LogLevelResponse echoes the applied log levels.
type LogLevelResponse struct {
	Level    int    `json:"level"`
	AppLevel string `json:"app_level,omitempty"`
}

// Stream message types.
const (
	StreamMessageState    = "state"
	StreamMessageProgress = "progress"
)

// StreamMessage is one websocket frame of the progress stream. The first
// frame carries the current state; the rest carry events.
type StreamMessage struct {
	Type  string          `json:"type"`
	State *job.State      `json:"state,omitempty"`
	Event *progress.Event `json:"event,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:         j.ID,
		Status:     string(j.Status),
		Progress:   j.Progress,
		Error:      j.Error,
		SourcePath: j.SourcePath,
		OutputPath: j.OutputPath,
		Quality:    j.Quality,
		Output:     j.Output,
		VideoURL:   j.VideoURL,
		CreatedAt:  j.CreatedAt,
	}
	if !j.StartedAt.IsZero() {
		started := j.StartedAt
		resp.StartedAt = &started
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}
