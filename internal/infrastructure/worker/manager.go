package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is a background job owned by a Manager
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Status is a point-in-time view of a worker
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	Runs      int       `json:"runs"`
	LastError string    `json:"last_error,omitempty"`
}

// StatusReporter is implemented by workers that expose their state
type StatusReporter interface {
	Status() Status
}

// Manager starts and stops a fixed set of workers together.
// Workers are stopped in reverse registration order.
type Manager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	workers []Worker
	names   map[string]struct{}
	started []Worker
	cancel  context.CancelFunc
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger.Named("workers"),
		names:  make(map[string]struct{}),
	}
}

// Register adds a worker. Names must be unique and the manager must be stopped.
func (m *Manager) Register(w Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("cannot register %s: workers are running", w.Name())
	}
	if _, dup := m.names[w.Name()]; dup {
		return fmt.Errorf("worker %s already registered", w.Name())
	}
	m.names[w.Name()] = struct{}{}
	m.workers = append(m.workers, w)
	m.logger.Info("Worker registered", zap.String("worker_name", w.Name()), zap.Int("total_workers", len(m.workers)))
	return nil
}

// StartAll starts every registered worker under a context derived from ctx.
// A worker that fails to start is logged and skipped; the others keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return errors.New("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = m.started[:0]

	for _, w := range m.workers {
		if err := w.Start(runCtx); err != nil {
			m.logger.Error("Failed to start worker", zap.String("worker_name", w.Name()), zap.Error(err))
			continue
		}
		m.started = append(m.started, w)
	}
	m.logger.Info("Workers started", zap.Int("started", len(m.started)), zap.Int("registered", len(m.workers)))
	return nil
}

// StopAll cancels the shared context and stops the workers that started.
// Calling it on a stopped manager is a no-op.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.cancel = nil

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		w := m.started[i]
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	m.started = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Info("Workers stopped")
	return nil
}

// Count returns the number of registered workers
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// Running reports whether StartAll has been called without a matching StopAll
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancel != nil
}

// Statuses reports the state of every worker that exposes one
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.workers))
	for _, w := range m.workers {
		if r, ok := w.(StatusReporter); ok {
			out = append(out, r.Status())
		}
	}
	return out
}
