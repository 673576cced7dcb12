package worker

import (
	"context"

	"vidhook/internal/models"
	"vidhook/internal/pkg/logger"
	"vidhook/internal/ports"
)

// JobProcessor runs one job to a terminal state. *processor.Processor
// implements it.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.RenderJob) error
}

type Deps struct {
	Processor JobProcessor
	Store     ports.JobStore
	Log       *logger.Logger

	// DefaultMode applies when a request does not pick one.
	DefaultMode Mode
	// MaxConcurrent bounds jobs rendering at once, in both modes.
	MaxConcurrent int
	// QueueSize bounds background jobs waiting for a slot.
	QueueSize int
}
