package processor

import (
	"context"
	"fmt"
	"time"

	"vidhook/internal/models"
	"vidhook/internal/pkg/errors"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/ports"
	"vidhook/internal/worker/filtergraph"
	"vidhook/internal/worker/renderer"
	"vidhook/internal/worker/workspace"
)

type Deps struct {
	Workspace     *workspace.Manager
	Fetcher       Fetcher
	Engine        renderer.Engine
	SP            ports.StorageProvider
	Store         ports.JobStore
	Graph         filtergraph.Params
	FetchTimeout  time.Duration
	RenderTimeout time.Duration
	Log           *logger.Logger
}

// Processor runs one job through fetch, build, render and publish.
type Processor struct {
	ws    *workspace.Manager
	store ports.JobStore
	log   *logger.Logger

	inputHandler    *InputHandler
	outputHandler   *OutputHandler
	rendererAdapter *RendererAdapter
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	return &Processor{
		ws:              d.Workspace,
		store:           d.Store,
		log:             log,
		inputHandler:    NewInputHandler(d.Fetcher, d.FetchTimeout),
		outputHandler:   NewOutputHandler(d.SP),
		rendererAdapter: NewRendererAdapter(d.Engine, d.Graph, d.RenderTimeout),
		cleanup:         NewCleanup(d.Workspace),
	}
}

// ProcessJob drives job from Created to Completed or Failed. Every state
// change is saved to the job store. The returned error is the failure cause;
// the job itself always ends terminal. ctx is checked between steps.
func (p *Processor) ProcessJob(ctx context.Context, job *models.RenderJob) error {
	ctx = logger.ContextWithJob(ctx, job)
	log := p.log.FromContext(ctx)
	start := time.Now()

	if job.Paths == (models.WorkspacePaths{}) {
		job.Paths = p.ws.Allocate(job.ID)
	}
	defer p.cleanup.CleanupJob(job, log)

	// 1. Fetch
	if err := p.transition(ctx, job, models.StateFetching, log); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return p.failJob(ctx, job, errors.Wrap(err, "processor.fetch", "canceled before fetch"), log)
	}
	log.Debug("fetching inputs")
	if err := p.inputHandler.Materialize(ctx, job); err != nil {
		return p.failJob(ctx, job, canceledOr(ctx, err, "processor.fetch"), log)
	}
	if err := ctx.Err(); err != nil {
		return p.failJob(ctx, job, errors.Wrap(err, "processor.fetch", "canceled after fetch"), log)
	}

	// 2. Build
	if err := p.transition(ctx, job, models.StateBuilding, log); err != nil {
		return err
	}
	graph := p.rendererAdapter.Graph(job)
	log.Debug("filter graph built", "graph", graph.String())

	// 3. Render
	if err := p.transition(ctx, job, models.StateRendering, log); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return p.failJob(ctx, job, errors.Wrap(err, "processor.render", "canceled before render"), log)
	}
	log.Info("starting render")
	outcome := p.rendererAdapter.Render(ctx, job, graph, log)
	if outcome.Err != nil {
		return p.failJob(ctx, job, canceledOr(ctx, outcome.Err, "processor.render"), log)
	}

	// 4. Publish
	out, err := p.outputHandler.Publish(ctx, job)
	if err != nil {
		return p.failJob(ctx, job, err, log)
	}

	if err := job.Complete(out.ObjectKey, out.URL); err != nil {
		return errors.Wrap(err, "processor.complete", "illegal state change")
	}
	p.save(ctx, job, log)

	log.Info("job completed",
		"output_key", out.ObjectKey,
		"bytes", out.Size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) transition(ctx context.Context, job *models.RenderJob, next models.State, log *logger.Logger) error {
	from := job.State
	if err := job.Transition(next); err != nil {
		return errors.Wrap(err, "processor.transition", "illegal state change")
	}
	log.StateChanged(job, from)
	p.save(ctx, job, log)
	return nil
}

// save records a snapshot. The store is a status record; a failed write
// does not fail the render.
func (p *Processor) save(ctx context.Context, job *models.RenderJob, log *logger.Logger) {
	if p.store == nil {
		return
	}
	// a canceled job must still record its terminal state
	if err := p.store.Save(context.WithoutCancel(ctx), *job); err != nil {
		log.Warn("job store save failed", "state", string(job.State), "error", err.Error())
	}
}

func (p *Processor) failJob(ctx context.Context, job *models.RenderJob, cause error, log *logger.Logger) error {
	log.JobFailed(job, cause)

	if err := job.Fail(cause); err != nil {
		log.Warn("could not mark job failed", "error", err.Error())
	}
	p.save(ctx, job, log)
	return cause
}

// canceledOr reports a step failure as CANCELED, or TIMEOUT, when ctx ended
// while the step ran.
func canceledOr(ctx context.Context, err error, op string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(fmt.Errorf("%w (step error: %v)", ctxErr, err), op, "canceled during step")
	}
	return err
}
