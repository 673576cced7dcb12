package worker

import (
	"context"
	"time"

	"vidhook/internal/pkg/logger"
	"vidhook/internal/ports"
	"vidhook/internal/worker/workspace"
)

// Sweeper removes staging leftovers of interrupted jobs and prunes old job
// records from stores without native expiry. Published outputs are never
// touched.
type Sweeper struct {
	ws        *workspace.Manager
	store     ports.JobStore
	interval  time.Duration
	retention time.Duration
	log       *logger.Logger
}

func NewSweeper(ws *workspace.Manager, store ports.JobStore, interval, retention time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Sweeper{
		ws:        ws,
		store:     store,
		interval:  interval,
		retention: retention,
		log:       log.WithComponent("sweeper"),
	}
}

// Run sweeps every interval until ctx ends. A non-positive interval
// disables sweeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.retention <= 0 {
		s.log.Info("sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	removed, err := s.ws.Sweep(s.retention)
	if err != nil {
		s.log.Warn("staging sweep failed", "error", err.Error())
	}
	if removed > 0 {
		s.log.Info("staging files removed", "count", removed)
	}

	pruner, ok := s.store.(ports.JobPruner)
	if !ok {
		return
	}
	n, err := pruner.Prune(ctx, time.Now().Add(-s.retention))
	if err != nil {
		s.log.Warn("job prune failed", "store", s.store.Name(), "error", err.Error())
		return
	}
	if n > 0 {
		s.log.Info("job records pruned", "store", s.store.Name(), "count", n)
	}
}
