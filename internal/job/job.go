// Package job provides the compression job record with its state machine,
// the repositories that keep job history, and the guard that enforces a
// single active compression.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/vidcompress/internal/job/id"
	"github.com/maauso/vidcompress/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the request was accepted but not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the encoder is working on the job.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job produced output.
	StatusCompleted Status = "COMPLETED"
	// StatusSkipped indicates the policy found the source already small enough.
	StatusSkipped Status = "SKIPPED"
	// StatusFailed indicates the encoder could not finish the job.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was stopped by cancellation.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job exceeded the configured deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusSkipped, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusSkipped:   {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job is the history record of one compression request.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains the failure reason if the job failed.
	Error string
	// SourcePath is the file being compressed.
	SourcePath string
	// OutputPath is the file the encoder writes.
	OutputPath string
	// Quality is the requested preset, empty for explicit parameters.
	Quality string
	// Output is the metadata of the result once available.
	Output *media.Info
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// VideoURL is the S3 URL if PushToS3 was true.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when encoding started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusSkipped:
		j.Progress = 100
		j.CompletedAt = j.UpdatedAt
	case StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the output and transitions the job to COMPLETED.
func (j *Job) Complete(output media.Info) error {
	j.mu.Lock()
	j.Output = &output
	j.mu.Unlock()
	return j.TransitionTo(StatusCompleted)
}

// Skip records the probed source as output and transitions to SKIPPED.
func (j *Job) Skip(source media.Info) error {
	j.mu.Lock()
	j.Output = &source
	j.mu.Unlock()
	return j.TransitionTo(StatusSkipped)
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT state.
func (j *Job) Timeout() error {
	return j.TransitionTo(StatusTimedOut)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage (0-100).
// It reports whether the stored value changed.
func (j *Job) UpdateProgress(progress int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress == j.Progress {
		return false
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
	return true
}

// SetVideoURL sets the S3 URL of the uploaded output.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(validTransitions[j.Status]) == 0
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var output *media.Info
	if j.Output != nil {
		o := *j.Output
		output = &o
	}

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Error:       j.Error,
		SourcePath:  j.SourcePath,
		OutputPath:  j.OutputPath,
		Quality:     j.Quality,
		Output:      output,
		PushToS3:    j.PushToS3,
		VideoURL:    j.VideoURL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
