// Package compress decides when a video is worth compressing and runs at
// most one compression at a time through the platform encoder.
package compress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/vidcompress/internal/job"
	"github.com/maauso/vidcompress/internal/media"
	"github.com/maauso/vidcompress/internal/platform"
	"github.com/maauso/vidcompress/internal/progress"
)

var (
	// ErrJobInProgress is returned when a compression is already running.
	// The caller should wait or cancel; it must not retry automatically.
	ErrJobInProgress = fmt.Errorf("compress: job in progress: %w", job.ErrAlreadyBusy)
	// ErrNativeInvocation is returned when the platform call itself failed.
	ErrNativeInvocation = errors.New("compress: native invocation failed")
	// ErrJobTimedOut is returned when a job exceeds the configured deadline.
	ErrJobTimedOut = errors.New("compress: job timed out")
	// ErrJobActive is returned when deleting a job that has not finished.
	ErrJobActive = errors.New("compress: job has not finished")
)

// Outcome is the terminal result of a compression request.
type Outcome string

const (
	// OutcomeCompressed means the encoder produced output.
	OutcomeCompressed Outcome = "compressed"
	// OutcomeSkipped means the policy declined; Info is the probed source.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the encoder could not finish; Info is nil.
	OutcomeFailed Outcome = "failed"
	// OutcomeCancelled means the job was stopped; Info is nil.
	OutcomeCancelled Outcome = "cancelled"
)

// Result is returned by Compress.
type Result struct {
	Outcome Outcome
	// Info describes the output, or the source when skipped.
	Info  *media.Info
	JobID string
	// VideoURL is set when the output was uploaded.
	VideoURL string
}

// Prober reads normalized media metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Uploader pushes a finished file to remote storage and returns its URL.
type Uploader interface {
	UploadToS3(ctx context.Context, key string, data io.Reader) (string, error)
}

// Orchestrator runs compression requests against a platform encoder.
// It is safe for concurrent use; concurrent requests beyond the first
// fail with ErrJobInProgress.
type Orchestrator struct {
	platform     platform.Platform
	prober       Prober
	guard        *job.Guard
	progress     *progress.Broadcaster
	repo         job.Repository
	uploader     Uploader
	logger       *slog.Logger
	lowResFactor float64
	jobTimeout   time.Duration

	mu     sync.Mutex
	active *pending
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGuard shares a job guard with other components.
func WithGuard(g *job.Guard) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.guard = g
		}
	}
}

// WithBroadcaster sets the progress stream.
func WithBroadcaster(b *progress.Broadcaster) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.progress = b
		}
	}
}

// WithRepository sets where job history is recorded.
func WithRepository(r job.Repository) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.repo = r
		}
	}
}

// WithUploader enables uploads for requests with PushToS3 set.
func WithUploader(u Uploader) Option {
	return func(o *Orchestrator) {
		o.uploader = u
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLowResFactor sets the divisor applied to the source bitrate for the
// low quality preset. Non-positive values are ignored.
func WithLowResFactor(f float64) Option {
	return func(o *Orchestrator) {
		if f > 0 {
			o.lowResFactor = f
		}
	}
}

// WithJobTimeout sets a deadline for each encode. Zero disables it.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.jobTimeout = d
		}
	}
}

// NewOrchestrator creates an Orchestrator for p. Probing goes through
// prober, which normalizes orientation.
func NewOrchestrator(p platform.Platform, prober Prober, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		platform:     p,
		prober:       prober,
		guard:        job.NewGuard(),
		progress:     progress.NewBroadcaster(0),
		repo:         job.NewMemoryRepository(),
		logger:       slog.Default(),
		lowResFactor: DefaultLowResBitrateFactor,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the compression slot state.
func (o *Orchestrator) State() job.State {
	return o.guard.State()
}

// Subscribe opens a progress subscription. Events published before the
// call are not replayed.
func (o *Orchestrator) Subscribe() *progress.Subscription {
	return o.progress.Subscribe()
}

// Cancel stops the job holding the slot, including one that has not
// reached the platform encoder yet, and asks the platform to stop its
// encode. The slot is released only when the job reports its outcome.
func (o *Orchestrator) Cancel() {
	st := o.guard.State()
	o.logger.Info("cancel requested",
		slog.Bool("busy", st.IsBusy),
		slog.String("job_id", st.JobID),
	)

	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if active != nil {
		active.abort(platform.ErrCancelled)
	}
	o.platform.Cancel()
}

// pending is a request that passed the pre-checks.
type pending struct {
	req    Request
	job    *job.Job
	source *media.Info
	token  *job.Token
	result *Result

	// aborted is cancelled by Cancel while the token is held.
	aborted context.Context
	abort   context.CancelCauseFunc
}

// Compress runs req to completion. Declined, failed, and cancelled jobs
// return a Result with a nil error; ErrJobInProgress, ErrNativeInvocation,
// ErrJobTimedOut, and probe errors are returned as errors.
func (o *Orchestrator) Compress(ctx context.Context, req Request) (Result, error) {
	p, err := o.prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if p.result != nil {
		return *p.result, nil
	}
	return o.execute(ctx, p)
}

// Submit validates req and claims the slot, then encodes in the
// background. It returns the job record; a declined request comes back
// already SKIPPED.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*job.Job, error) {
	p, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.result != nil {
		return p.job.Clone(), nil
	}

	snapshot := p.job.Clone()
	go func(ctx context.Context) {
		if _, err := o.execute(ctx, p); err != nil {
			o.logger.Error("background compression failed",
				slog.String("job_id", p.job.ID),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx))
	return snapshot, nil
}

// Job returns a recorded job.
func (o *Orchestrator) Job(ctx context.Context, id string) (*job.Job, error) {
	return o.repo.FindByID(ctx, id)
}

// DeleteJob removes a finished job from the history. Jobs still queued or
// running return ErrJobActive.
func (o *Orchestrator) DeleteJob(ctx context.Context, id string) error {
	j, err := o.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !j.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobActive, id, j.GetStatus())
	}
	if err := o.repo.Delete(ctx, id); err != nil {
		return err
	}
	o.logger.Info("job deleted", slog.String("job_id", id))
	return nil
}

// Jobs returns recorded jobs, newest first.
func (o *Orchestrator) Jobs(ctx context.Context, limit int) ([]*job.Job, error) {
	return o.repo.List(ctx, limit)
}

// prepare validates, probes when needed, applies the policy, and claims
// the slot. On return either p.result is set (declined) or p.token is held.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (*pending, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	j := job.New()
	j.SourcePath = req.SourcePath
	j.OutputPath = req.OutputPath
	j.PushToS3 = req.PushToS3
	if req.Explicit == nil {
		j.Quality = string(req.quality())
	}
	p := &pending{req: req, job: j}

	if req.CheckSize || req.needsSourceInfo() {
		info, err := o.prober.Probe(ctx, req.SourcePath)
		if err != nil {
			return nil, err
		}
		p.source = &info

		if req.CheckSize && !ShouldCompress(info) {
			o.logger.Info("compression skipped, source already small",
				slog.String("job_id", j.ID),
				slog.String("path", req.SourcePath),
				slog.Int("width", info.Width),
				slog.Int("height", info.Height),
			)
			if err := j.Skip(info); err != nil {
				return nil, err
			}
			o.save(ctx, j)
			o.publish(progress.Event{Kind: progress.KindSkipped, JobID: j.ID, Fraction: 1})
			p.result = &Result{Outcome: OutcomeSkipped, Info: &info, JobID: j.ID}
			return p, nil
		}
	}

	tok, err := o.guard.TryAcquire(req.SourcePath, j.ID)
	if err != nil {
		o.logger.Warn("compression rejected, slot busy",
			slog.String("path", req.SourcePath),
			slog.String("active_path", o.guard.State().ActivePath),
		)
		return nil, ErrJobInProgress
	}
	p.token = tok
	o.logger.Debug("compression slot acquired",
		slog.String("token", tok.ID()),
		slog.String("job_id", tok.JobID()),
		slog.String("path", tok.Path()),
	)
	p.aborted, p.abort = context.WithCancelCause(context.Background())
	o.mu.Lock()
	o.active = p
	o.mu.Unlock()

	o.save(ctx, j)
	return p, nil
}

// execute encodes a prepared request and releases its token on every path.
func (o *Orchestrator) execute(ctx context.Context, p *pending) (Result, error) {
	j := p.job
	var once sync.Once
	release := func() {
		once.Do(func() {
			o.mu.Lock()
			if o.active == p {
				o.active = nil
			}
			o.mu.Unlock()
			p.abort(nil)
			if err := o.guard.Release(p.token); err != nil {
				o.logger.Error("release job token",
					slog.String("job_id", p.token.JobID()),
					slog.String("token", p.token.ID()),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	defer release()

	encCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	unlink := context.AfterFunc(p.aborted, func() { stop(context.Cause(p.aborted)) })
	defer unlink()

	if err := j.Start(); err != nil {
		return Result{}, err
	}
	o.save(ctx, j)

	if !o.progress.HasSubscribers() {
		o.logger.Info("compression started with no progress subscribers; earlier events are not replayed",
			slog.String("job_id", j.ID),
		)
	}
	o.logger.Info("compression started",
		slog.String("job_id", j.ID),
		slog.String("source", p.req.SourcePath),
		slog.String("output", p.req.OutputPath),
		slog.String("quality", j.Quality),
	)

	enc := p.req.encodeRequest(p.source, o.lowResFactor)

	var finished atomic.Bool
	onProgress := func(fraction float64) {
		if finished.Load() {
			return
		}
		o.publish(progress.Event{Kind: progress.KindProgress, JobID: j.ID, Fraction: fraction})
		if j.UpdateProgress(int(fraction * 100)) {
			o.save(ctx, j)
		}
	}

	var info media.Info
	var err error
	if cause := context.Cause(encCtx); cause != nil {
		// Cancelled before the platform was reached.
		err = cause
	} else {
		info, err = o.encode(encCtx, enc, onProgress)
	}
	finished.Store(true)

	res, event, err := o.finish(ctx, p, info, err)
	release()
	o.publish(event)
	return res, err
}

// finish records the encode outcome on the job and returns the Result and
// the terminal event to publish once the slot is free.
func (o *Orchestrator) finish(ctx context.Context, p *pending, info media.Info, err error) (Result, progress.Event, error) {
	j := p.job
	res := Result{JobID: j.ID}
	event := progress.Event{JobID: j.ID}

	var encErr *platform.EncodeError
	switch {
	case err == nil:
		out := info.Upright()
		if out.Path == "" {
			out.Path = p.req.OutputPath
		}
		if p.req.PushToS3 {
			res.VideoURL = o.upload(ctx, j, out.Path)
		}
		_ = j.Complete(out)
		o.save(ctx, j)
		event.Kind = progress.KindCompleted
		event.Fraction = 1
		o.logger.Info("compression completed",
			slog.String("job_id", j.ID),
			slog.Int64("filesize", out.FileSize),
			slog.Int("width", out.Width),
			slog.Int("height", out.Height),
		)
		res.Outcome = OutcomeCompressed
		res.Info = &out
		return res, event, nil

	case errors.Is(err, ErrJobTimedOut):
		_ = j.Timeout()
		o.save(ctx, j)
		event.Kind = progress.KindTimedOut
		o.logger.Error("compression timed out",
			slog.String("job_id", j.ID),
			slog.Duration("timeout", o.jobTimeout),
		)
		res.Outcome = OutcomeFailed
		return res, event, ErrJobTimedOut

	case errors.Is(err, platform.ErrCancelled), errors.Is(err, context.Canceled):
		_ = j.Cancel()
		o.save(ctx, j)
		event.Kind = progress.KindCancelled
		o.logger.Info("compression cancelled", slog.String("job_id", j.ID))
		res.Outcome = OutcomeCancelled
		return res, event, nil

	case errors.As(err, &encErr):
		_ = j.Fail(err.Error())
		o.save(ctx, j)
		event.Kind = progress.KindFailed
		o.logger.Error("compression failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		res.Outcome = OutcomeFailed
		return res, event, nil

	default:
		_ = j.Fail(err.Error())
		o.save(ctx, j)
		event.Kind = progress.KindFailed
		o.logger.Error("platform encode call failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		res.Outcome = OutcomeFailed
		return res, event, fmt.Errorf("%w: %w", ErrNativeInvocation, err)
	}
}

type encodeResult struct {
	info media.Info
	err  error
}

// encode calls the platform, enforcing the job deadline when configured.
// On deadline the platform is cancelled and the call is abandoned.
func (o *Orchestrator) encode(ctx context.Context, enc platform.EncodeRequest, onProgress platform.ProgressFunc) (media.Info, error) {
	if o.jobTimeout <= 0 {
		return o.callEncode(ctx, enc, onProgress)
	}

	runCtx, cancel := context.WithTimeoutCause(ctx, o.jobTimeout, ErrJobTimedOut)
	defer cancel()

	done := make(chan encodeResult, 1)
	go func() {
		info, err := o.callEncode(runCtx, enc, onProgress)
		done <- encodeResult{info: info, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(context.Cause(runCtx), ErrJobTimedOut) {
			return media.Info{}, ErrJobTimedOut
		}
		return r.info, r.err
	case <-runCtx.Done():
		if errors.Is(context.Cause(runCtx), ErrJobTimedOut) {
			o.platform.Cancel()
			return media.Info{}, ErrJobTimedOut
		}
		r := <-done
		return r.info, r.err
	}
}

// callEncode invokes the platform and converts a panic into an
// invocation error.
func (o *Orchestrator) callEncode(ctx context.Context, enc platform.EncodeRequest, onProgress platform.ProgressFunc) (info media.Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: platform panic: %v", platform.ErrInvocation, r)
		}
	}()
	return o.platform.Encode(ctx, enc, onProgress)
}

// upload pushes the output to remote storage. Failures are logged and
// leave the job completed without a URL.
func (o *Orchestrator) upload(ctx context.Context, j *job.Job, file string) string {
	if o.uploader == nil {
		o.logger.Warn("upload requested but no uploader configured", slog.String("job_id", j.ID))
		return ""
	}

	f, err := os.Open(file) // #nosec G304 - output path chosen by the caller
	if err != nil {
		o.logger.Error("open output for upload",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	defer func() { _ = f.Close() }()

	key := path.Join("compressed", j.ID+filepath.Ext(file))
	url, err := o.uploader.UploadToS3(ctx, key, f)
	if err != nil {
		o.logger.Error("upload output",
			slog.String("job_id", j.ID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}

	j.SetVideoURL(url)
	o.logger.Info("output uploaded", slog.String("job_id", j.ID), slog.String("url", url))
	return url
}

func (o *Orchestrator) save(ctx context.Context, j *job.Job) {
	if err := o.repo.Save(ctx, j); err != nil {
		o.logger.Warn("record job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) publish(e progress.Event) {
	o.progress.Publish(e)
}
