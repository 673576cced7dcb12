package memory

import (
	"context"
	"sync"
	"time"

	"vidhook/internal/models"
	"vidhook/internal/ports"
)

// Store keeps job snapshots in process memory. Terminal jobs older than the
// retention window are dropped on write.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]models.RenderJob
	retention time.Duration
	now       func() time.Time
}

func New(retention time.Duration) *Store {
	return &Store{
		jobs:      make(map[string]models.RenderJob),
		retention: retention,
		now:       time.Now,
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Save(_ context.Context, job models.RenderJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	s.evictLocked()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (models.RenderJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.RenderJob{}, ports.ErrJobNotFound
	}
	return job, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) evictLocked() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for id, job := range s.jobs {
		if job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
