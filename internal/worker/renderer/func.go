package renderer

import (
	"context"

	"vidhook/internal/pkg/errors"
)

// RenderFunc performs a render in process, reporting progress through emit.
type RenderFunc func(ctx context.Context, inv Invocation, emit func(Progress)) error

// FuncEngine adapts a RenderFunc to Engine. It backs tests and local
// experiments that must not spawn processes.
type FuncEngine struct {
	name string
	fn   RenderFunc
}

func NewFuncEngine(name string, fn RenderFunc) *FuncEngine {
	return &FuncEngine{name: name, fn: fn}
}

func (e *FuncEngine) Name() string { return e.name }

func (e *FuncEngine) Start(ctx context.Context, inv Invocation) (*Run, error) {
	run := newRun()
	go func() {
		if err := e.fn(ctx, inv, run.emit); err != nil {
			if !errors.IsCode(err, errors.CodeRender) {
				err = errors.RenderFailed(err, errors.ReasonProcessing)
			}
			run.finish(Outcome{Err: err})
			return
		}
		run.finish(Outcome{Path: inv.Output})
	}()
	return run, nil
}
