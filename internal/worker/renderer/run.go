package renderer

import (
	"context"
	"sync"

	"vidhook/internal/pkg/errors"
	"vidhook/internal/worker/filtergraph"
)

// Fixed output format.
const (
	Container  = "mp4"
	VideoCodec = "libx264"
	AudioCodec = "aac"
)

// Invocation is everything an engine needs for one render.
type Invocation struct {
	JobID string
	// Inputs in slot order: [0] video, [1] template image.
	Inputs []string
	Graph  filtergraph.Spec
	Output string
}

// Progress is a periodic engine report. Engines that cannot observe
// progress emit none.
type Progress struct {
	Frame   int64
	OutTime int64 // microseconds of output written
	Speed   string
}

// Outcome is the terminal result of a render. Exactly one of Path or Err is
// set.
type Outcome struct {
	Path string
	Err  error
}

// Engine runs a filter graph out of process.
type Engine interface {
	Name() string
	// Start launches the render and returns without waiting for it. A
	// returned error means the engine never started.
	Start(ctx context.Context, inv Invocation) (*Run, error)
}

// Run is an in-flight render: zero or more Progress events followed by
// exactly one Outcome. The progress channel is closed before Done fires.
type Run struct {
	progress chan Progress
	done     chan struct{}
	once     sync.Once
	outcome  Outcome
}

func newRun() *Run {
	return &Run{
		progress: make(chan Progress, 16),
		done:     make(chan struct{}),
	}
}

func (r *Run) Progress() <-chan Progress { return r.progress }

func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the render is terminal.
func (r *Run) Wait() Outcome {
	<-r.done
	return r.outcome
}

// emit never blocks the engine; a slow reader only loses intermediate
// reports.
func (r *Run) emit(p Progress) {
	select {
	case r.progress <- p:
	default:
	}
}

func (r *Run) finish(o Outcome) {
	r.once.Do(func() {
		r.outcome = o
		close(r.progress)
		close(r.done)
	})
}

// Render validates inv, starts it on e and blocks until it is terminal.
// Every failure is RENDER_FAILED coded.
func Render(ctx context.Context, e Engine, inv Invocation) Outcome {
	run, err := Start(ctx, e, inv)
	if err != nil {
		return Outcome{Err: err}
	}
	for range run.Progress() {
	}
	return run.Wait()
}

// Start validates inv and starts it on e without waiting.
func Start(ctx context.Context, e Engine, inv Invocation) (*Run, error) {
	if err := inv.Graph.Validate(len(inv.Inputs)); err != nil {
		return nil, errors.RenderFailed(err, errors.ReasonInvalidGraph)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.RenderFailed(err, errors.ReasonInvocation)
	}
	run, err := e.Start(ctx, inv)
	if err != nil {
		// an engine that already classified its failure keeps the reason
		var coded *errors.Error
		if errors.As(err, &coded) && coded.Code == errors.CodeRender && coded.Reason() != "" {
			return nil, err
		}
		return nil, errors.RenderFailed(err, errors.ReasonInvocation).WithField("engine", e.Name())
	}
	return run, nil
}
