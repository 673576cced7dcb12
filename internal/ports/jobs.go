package ports

import (
	"context"
	"errors"
	"time"

	"vidhook/internal/models"
)

// ErrJobNotFound is returned by JobStore.Get for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// JobStore keeps the latest snapshot of each RenderJob so background callers
// can poll for the outcome. It is a status record, not a work queue: nothing
// is ever re-dispatched from it.
type JobStore interface {
	Name() string

	// Save inserts or replaces the snapshot for job.ID.
	Save(ctx context.Context, job models.RenderJob) error
	Get(ctx context.Context, id string) (models.RenderJob, error)

	Ping(ctx context.Context) error
	Close() error
}

// JobPruner is implemented by stores that need an explicit sweep to drop
// terminal jobs last updated before a cutoff. Stores with native expiry
// (redis) and the memory store do not implement it.
type JobPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}
