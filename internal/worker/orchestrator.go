// Package worker owns render jobs from acceptance to terminal state.
//
// Synchronous requests run on the caller's goroutine and return the real
// outcome. Background requests are acknowledged before any work starts and
// handed to a dispatcher; their outcome is only visible in logs and through
// the job store.
package worker

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"vidhook/internal/models"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/ports"
	"vidhook/internal/worker/filtergraph"
)

type Mode string

const (
	ModeSync       Mode = "sync"
	ModeBackground Mode = "background"
)

// ParseMode accepts "sync" and "background" plus a few aliases. Empty
// returns def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "sync", "synchronous":
		return ModeSync, nil
	case "background", "async", "accepted":
		return ModeBackground, nil
	default:
		return "", errors.ValidationField("mode", "mode must be sync or background")
	}
}

// Request is one inbound render.
type Request struct {
	VideoURL         string
	TemplateImageURL string
	Preset           string
	// BaseURL prefixes the output URL, e.g. "https://host".
	BaseURL string
}

// Handle describes the job a request created. In background mode Job is
// the snapshot at acceptance.
type Handle struct {
	Mode Mode
	Job  models.RenderJob
}

type Orchestrator struct {
	proc        JobProcessor
	store       ports.JobStore
	log         *logger.Logger
	defaultMode Mode

	sem   *semaphore.Weighted
	queue chan *models.RenderJob
	// slots counts reserved queue capacity, so a send never blocks.
	slots *semaphore.Weighted

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	inflight  sync.WaitGroup

	// jobCtx outlives requests; canceled only on shutdown.
	jobCtx     context.Context
	cancelJobs context.CancelFunc
}

func New(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	maxConcurrent := d.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	queueSize := d.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	mode := d.DefaultMode
	if mode == "" {
		mode = ModeSync
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		proc:        d.Processor,
		store:       d.Store,
		log:         log.WithComponent("worker"),
		defaultMode: mode,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		queue:       make(chan *models.RenderJob, queueSize),
		slots:       semaphore.NewWeighted(int64(queueSize)),
		jobCtx:      jobCtx,
		cancelJobs:  cancel,
	}
}

// DefaultMode is the mode used when a request does not choose one.
func (o *Orchestrator) DefaultMode() Mode { return o.defaultMode }

// RenderJob validates req and runs or enqueues it. Validation failures
// happen before any I/O. In sync mode the returned error is the job's
// failure cause.
func (o *Orchestrator) RenderJob(ctx context.Context, req Request, mode Mode) (Handle, error) {
	job, err := o.newJob(req)
	if err != nil {
		return Handle{}, err
	}
	if mode == "" {
		mode = o.defaultMode
	}
	ctx = logger.ContextWithJob(ctx, job)
	log := o.log.FromContext(ctx)

	switch mode {
	case ModeBackground:
		// the dispatcher owns job once it is queued
		snapshot := *job
		if err := o.enqueue(job); err != nil {
			return Handle{}, err
		}
		log.Info("job accepted", "mode", string(mode))
		return Handle{Mode: mode, Job: snapshot}, nil

	case ModeSync:
		o.save(ctx, job, log)
		log.Info("job started", "mode", string(mode))
		err := o.runSync(ctx, job)
		return Handle{Mode: mode, Job: *job}, err

	default:
		return Handle{}, errors.ValidationField("mode", "unknown mode "+string(mode))
	}
}

func (o *Orchestrator) newJob(req Request) (*models.RenderJob, error) {
	video := strings.TrimSpace(req.VideoURL)
	image := strings.TrimSpace(req.TemplateImageURL)
	if video == "" || image == "" {
		return nil, errors.Validation("video_url and template_image_url are required")
	}
	var preset filtergraph.Preset
	if strings.TrimSpace(req.Preset) != "" {
		p, err := filtergraph.ParsePreset(req.Preset)
		if err != nil {
			return nil, errors.ValidationField("preset", err.Error())
		}
		preset = p
	}

	job := models.NewRenderJob(video, image)
	job.Preset = string(preset)
	job.BaseURL = req.BaseURL
	return job, nil
}

func (o *Orchestrator) runSync(ctx context.Context, job *models.RenderJob) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		// still drive the job to a terminal state
		return o.runJob(ctx, job)
	}
	defer o.sem.Release(1)
	return o.runJob(ctx, job)
}

func (o *Orchestrator) enqueue(job *models.RenderJob) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return errors.New(errors.CodeUnavailable, "server is shutting down")
	}
	if !o.slots.TryAcquire(1) {
		return errors.Newf(errors.CodeUnavailable, "render queue is full (%d waiting)", cap(o.queue))
	}

	// recorded before the dispatcher can touch the job
	o.save(context.Background(), job, o.log.WithJob(job))
	o.inflight.Add(1)
	o.queue <- job
	return nil
}

// Run dispatches background jobs until Drain closes the queue or ctx ends.
// When ctx ends, running jobs are canceled and queued ones are failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("dispatcher started")
	for {
		if ctx.Err() != nil {
			o.abort()
			o.log.Info("dispatcher stopped", "reason", ctx.Err().Error())
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			o.abort()
			o.log.Info("dispatcher stopped", "reason", ctx.Err().Error())
			return ctx.Err()

		case job, ok := <-o.queue:
			if !ok {
				o.log.Info("dispatcher drained")
				return nil
			}
			o.slots.Release(1)
			if err := o.sem.Acquire(ctx, 1); err != nil {
				o.cancelJobs()
				_ = o.runJob(o.jobCtx, job)
				o.inflight.Done()
				continue
			}
			go func() {
				defer o.inflight.Done()
				defer o.sem.Release(1)
				_ = o.runJob(o.jobCtx, job)
			}()
		}
	}
}

// Drain stops accepting background jobs and waits for queued and running
// ones. If ctx ends first, running jobs are canceled.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.closeIntake()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancelJobs()
		return nil
	case <-ctx.Done():
		o.cancelJobs()
		return ctx.Err()
	}
}

func (o *Orchestrator) closeIntake() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.queue)
		o.mu.Unlock()
	})
}

// abort fails every queued job with a canceled context so each one still
// records a terminal state.
func (o *Orchestrator) abort() {
	o.cancelJobs()
	o.closeIntake()
	for job := range o.queue {
		o.slots.Release(1)
		_ = o.runJob(o.jobCtx, job)
		o.inflight.Done()
	}
}

func (o *Orchestrator) runJob(ctx context.Context, job *models.RenderJob) error {
	ctx = logger.ContextWithJob(ctx, job)
	return o.proc.ProcessJob(ctx, job)
}

func (o *Orchestrator) save(ctx context.Context, job *models.RenderJob, log *logger.Logger) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, *job); err != nil {
		log.Warn("job store save failed", "error", err.Error())
	}
}
