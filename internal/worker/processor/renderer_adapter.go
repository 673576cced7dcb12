package processor

import (
	"context"
	"time"

	"vidhook/internal/models"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/worker/filtergraph"
	"vidhook/internal/worker/renderer"
)

type RendererAdapter struct {
	engine  renderer.Engine
	params  filtergraph.Params
	timeout time.Duration
}

func NewRendererAdapter(engine renderer.Engine, params filtergraph.Params, timeout time.Duration) *RendererAdapter {
	return &RendererAdapter{engine: engine, params: params, timeout: timeout}
}

// Graph builds the job's filter graph. The job preset, when set, overrides
// the configured one; it was validated at request time.
func (ra *RendererAdapter) Graph(job *models.RenderJob) filtergraph.Spec {
	p := ra.params
	if job.Preset != "" {
		p.Preset = filtergraph.Preset(job.Preset)
	}
	return filtergraph.Build(p)
}

// Render runs graph for job and waits for the outcome, logging engine
// progress at debug level.
func (ra *RendererAdapter) Render(ctx context.Context, job *models.RenderJob, graph filtergraph.Spec, log *logger.Logger) renderer.Outcome {
	if ra.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ra.timeout)
		defer cancel()
	}

	run, err := renderer.Start(ctx, ra.engine, renderer.Invocation{
		JobID:  job.ID,
		Inputs: []string{job.Paths.Video, job.Paths.Image},
		Graph:  graph,
		Output: job.Paths.Output,
	})
	if err != nil {
		return renderer.Outcome{Err: err}
	}

	for p := range run.Progress() {
		log.Debug("render progress",
			"frame", p.Frame,
			"out_time_ms", p.OutTime/1000,
			"speed", p.Speed,
		)
	}
	return run.Wait()
}
