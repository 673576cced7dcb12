// Package shutdown runs registered cleanup steps, newest first, when the
// process is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vidhook/internal/pkg/logger"
)

// Signals that start a shutdown.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// Step is one named cleanup.
type Step struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager owns the cleanup steps. All steps share one deadline.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []Step

	once sync.Once
	err  error
	done chan struct{}
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register appends a step. Steps run in reverse registration order, so
// whatever is registered first is torn down last.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Name: name, Cleanup: cleanup})
}

// RegisterSimple registers a step that cannot fail.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until one of Signals arrives or ctx ends, then shuts down and
// returns the combined step errors.
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, Signals...)
	defer stop()

	<-sigCtx.Done()
	m.log.Info("shutdown requested", "cause", context.Cause(sigCtx).Error())
	return m.Shutdown()
}

// Shutdown runs every step once. Later calls return the first result.
// A step failing does not stop the ones after it. When the deadline passes
// the remaining steps are abandoned and reported.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		defer close(m.done)
		m.err = m.run()
	})
	return m.err
}

func (m *Manager) run() error {
	m.mu.Lock()
	steps := make([]Step, len(m.steps))
	copy(steps, m.steps)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("shutting down", "steps", len(steps), "timeout", m.timeout.String())
	start := time.Now()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if err := m.runStep(ctx, s); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				for j := i - 1; j >= 0; j-- {
					errs = append(errs, fmt.Errorf("%s: skipped after deadline", steps[j].Name))
				}
				break
			}
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn("shutdown finished with errors", "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		return err
	}
	m.log.Info("shutdown complete", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// runStep returns when the step does or when ctx ends, whichever is first.
func (m *Manager) runStep(ctx context.Context, s Step) error {
	start := time.Now()
	result := make(chan error, 1)
	go func() { result <- s.Cleanup(ctx) }()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		m.log.Error("shutdown step failed", "step", s.Name, "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	m.log.Debug("shutdown step done", "step", s.Name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Done is closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}
