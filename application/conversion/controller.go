package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mp4-mp3/domain/conversion"

	"github.com/hashicorp/go-hclog"
)

// Controller runs the two-stage MP4 to MP3 pipeline, one job at a time
type Controller struct {
	handle    *EngineHandle
	progress  *conversion.ProgressAggregator
	logger    hclog.Logger
	listeners []Listener

	mu        sync.Mutex
	active    *conversion.Job
	committed bool // cancel requests are ignored once set
	last      *conversion.Job
	result    *conversion.Result // output of the last job, if it succeeded
	message   string
}

// ControllerOption is a functional option for configuring Controller
type ControllerOption func(*Controller)

// WithLogger sets the controller's logger
func WithLogger(logger hclog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithListener adds a listener for stage and progress changes
func WithListener(l Listener) ControllerOption {
	return func(c *Controller) {
		c.listeners = append(c.listeners, l)
	}
}

// NewController creates a controller driving the engine behind handle
func NewController(handle *EngineHandle, opts ...ControllerOption) *Controller {
	c := &Controller{
		handle:   handle,
		progress: conversion.NewProgressAggregator(),
		logger:   hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Outcome is the end of a job started with Submit
type Outcome struct {
	Result *conversion.Result
	Err    error
}

// Start converts src and returns the encoded MP3.
// It fails with ErrAlreadyRunning without touching the active job if one is running.
func (c *Controller) Start(ctx context.Context, src conversion.Source, opts conversion.Options) (*conversion.Result, error) {
	_, done, err := c.Submit(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	outcome := <-done
	return outcome.Result, outcome.Err
}

// Submit claims the controller for a new job and runs it in the background.
// The returned snapshot describes the new job; done receives its outcome once.
func (c *Controller) Submit(ctx context.Context, src conversion.Source, opts conversion.Options) (conversion.JobSnapshot, <-chan Outcome, error) {
	if len(src.Data) == 0 {
		return conversion.JobSnapshot{}, nil, conversion.ErrNoSource
	}

	job, snapshot, err := c.begin(src, opts)
	if err != nil {
		return conversion.JobSnapshot{}, nil, err
	}

	done := make(chan Outcome, 1)
	go func() {
		result, err := c.run(ctx, job, src)
		c.finish(job, err)
		done <- Outcome{Result: result, Err: err}
		close(done)
	}()
	return snapshot, done, nil
}

// Cancel requests cancellation of the active job. The running engine command is
// not interrupted; the request is observed at the next stage boundary.
// It returns false when there is nothing to cancel.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	job := c.active
	if job == nil || c.committed {
		c.mu.Unlock()
		return false
	}
	job.Cancel()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("cancel requested", "job_id", job.ID, "stage", snapshot.Stage)
	c.notifyStage(snapshot)
	return true
}

// Result returns the output of the last job when it finished successfully.
// It is set before listeners see the Done stage and cleared when a new job starts.
func (c *Controller) Result() *conversion.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Busy reports whether a job is active
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Snapshot returns the state of the active job, or of the last finished one
func (c *Controller) Snapshot() conversion.JobSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() conversion.JobSnapshot {
	job := c.active
	if job == nil {
		job = c.last
	}

	snapshot := conversion.JobSnapshot{
		Stage:    conversion.StageIdle,
		Progress: c.progress.Current(),
		Busy:     c.active != nil,
		Message:  c.message,
	}
	if job == nil {
		return snapshot
	}

	snapshot.JobID = job.ID
	snapshot.SourceName = job.SourceName
	snapshot.SourceSize = job.SourceSize
	snapshot.Quality = job.Options.Quality.String()
	snapshot.Stage = job.Stage()
	snapshot.CancelRequested = job.CancelRequested()
	if job.Stage() == conversion.StageDone {
		snapshot.ResultName = job.OutputFilename()
	}
	return snapshot
}

// begin claims the busy flag for a new job
func (c *Controller) begin(src conversion.Source, opts conversion.Options) (*conversion.Job, conversion.JobSnapshot, error) {
	c.mu.Lock()
	if c.active != nil {
		active := c.active.ID
		c.mu.Unlock()
		c.logger.Warn("rejected start while busy", "active_job_id", active, "source", src.Name)
		return nil, conversion.JobSnapshot{}, conversion.ErrAlreadyRunning
	}

	if opts.Quality.IsZero() {
		opts.Quality = conversion.MustParseQuality(conversion.DefaultQuality)
	}
	job := conversion.NewJob(src, opts)
	c.active = job
	c.committed = false
	c.result = nil
	c.message = ""
	c.progress.Reset()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("conversion started",
		"job_id", job.ID,
		"source", job.SourceName,
		"bytes", job.SourceSize,
		"quality", opts.Quality.String(),
	)
	return job, snapshot, nil
}

// finish records the outcome and releases the busy flag
func (c *Controller) finish(job *conversion.Job, err error) {
	c.mu.Lock()
	if err != nil {
		job.Fail(err)
	}
	c.active = nil
	c.last = job
	c.message = conversion.UserMessage(err)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	switch job.Stage() {
	case conversion.StageDone:
		c.logger.Info("conversion finished", "job_id", job.ID, "output", job.OutputFilename(), "elapsed", time.Since(job.StartedAt))
	case conversion.StageCanceled:
		c.logger.Info("conversion canceled", "job_id", job.ID)
	default:
		c.logger.Error("conversion failed", "job_id", job.ID, "error", err)
	}
	c.notifyStage(snapshot)
}

func (c *Controller) run(ctx context.Context, job *conversion.Job, src conversion.Source) (*conversion.Result, error) {
	if err := c.advance(job, conversion.StageLoading); err != nil {
		return nil, err
	}
	if err := c.handle.EnsureLoaded(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", conversion.ErrCanceled, ctx.Err())
		}
		return nil, &conversion.EngineUnavailableError{Err: err}
	}

	defer c.cleanup(job)

	if err := c.handle.WriteFile(conversion.InputFile, src.Data); err != nil {
		return nil, &conversion.TranscodeError{Stage: conversion.StageLoading, Message: "write input: " + err.Error(), Err: err}
	}
	if err := c.checkCanceled(ctx, job); err != nil {
		return nil, err
	}

	if err := c.runStage(ctx, job, conversion.StageDemuxing, conversion.DemuxArgs(job.Options)); err != nil {
		return nil, err
	}
	if err := c.checkCanceled(ctx, job); err != nil {
		return nil, err
	}

	if err := c.runStage(ctx, job, conversion.StageEncoding, conversion.EncodeArgs(job.Options)); err != nil {
		return nil, err
	}
	if err := c.commit(ctx, job); err != nil {
		return nil, err
	}

	data, err := c.handle.ReadFile(conversion.OutputFile)
	if err != nil {
		return nil, &conversion.TranscodeError{Stage: conversion.StageEncoding, Message: "read output: " + err.Error(), Err: err}
	}

	result := &conversion.Result{
		JobID:    job.ID,
		FileName: job.OutputFilename(),
		MimeType: conversion.MimeTypeMP3,
		Data:     data,
		Elapsed:  time.Since(job.StartedAt),
	}
	if err := c.complete(job, result); err != nil {
		return nil, err
	}
	return result, nil
}

// runStage enters stage, runs its engine command and pins its indicator at 100
func (c *Controller) runStage(ctx context.Context, job *conversion.Job, stage conversion.Stage, args []string) error {
	if err := c.advance(job, stage); err != nil {
		return err
	}

	err := c.handle.RunCommand(ctx, stage, args, c.observe)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", conversion.ErrCanceled, ctx.Err())
		}
		return &conversion.TranscodeError{Stage: stage, Message: err.Error(), Err: err}
	}

	if indicators, changed := c.progress.Complete(stage); changed {
		c.notifyProgress(stage, indicators)
	}
	return nil
}

// checkCanceled is the cooperative cancellation point between stages
func (c *Controller) checkCanceled(ctx context.Context, job *conversion.Job) error {
	if job.CancelRequested() {
		return conversion.ErrCanceled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", conversion.ErrCanceled, err)
	}
	return nil
}

// commit runs the last cancellation check; later cancel requests are ignored
func (c *Controller) commit(ctx context.Context, job *conversion.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkCanceled(ctx, job); err != nil {
		return err
	}
	c.committed = true
	return nil
}

func (c *Controller) advance(job *conversion.Job, next conversion.Stage) error {
	c.mu.Lock()
	err := job.Transition(next)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.logger.Debug("stage changed", "job_id", job.ID, "stage", next)
	c.notifyStage(snapshot)
	return nil
}

// complete enters Done with result already readable through Result
func (c *Controller) complete(job *conversion.Job, result *conversion.Result) error {
	c.mu.Lock()
	err := job.Transition(conversion.StageDone)
	if err == nil {
		c.result = result
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.logger.Debug("stage changed", "job_id", job.ID, "stage", conversion.StageDone)
	c.notifyStage(snapshot)
	return nil
}

func (c *Controller) observe(sample conversion.ProgressSample) {
	if indicators, changed := c.progress.Observe(sample); changed {
		c.notifyProgress(sample.Stage, indicators)
	}
}

// cleanup removes every virtual file a job may have created.
// Removal errors are logged individually and never change the outcome.
func (c *Controller) cleanup(job *conversion.Job) {
	for _, name := range conversion.VirtualFiles() {
		if err := c.handle.RemoveFile(name); err != nil {
			cleanupErr := &conversion.CleanupError{Name: name, Err: err}
			if errors.Is(err, conversion.ErrFileNotFound) {
				c.logger.Trace("virtual file already absent", "job_id", job.ID, "name", name)
				continue
			}
			c.logger.Warn("virtual file cleanup failed", "job_id", job.ID, "error", cleanupErr)
		}
	}
}

func (c *Controller) notifyStage(snapshot conversion.JobSnapshot) {
	for _, l := range c.listeners {
		l.StageChanged(snapshot)
	}
}

func (c *Controller) notifyProgress(stage conversion.Stage, indicators conversion.Indicators) {
	for _, l := range c.listeners {
		l.ProgressChanged(stage, indicators)
	}
}
