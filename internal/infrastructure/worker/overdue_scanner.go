package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// OverdueRecorder receives the overdue counts of each scan
type OverdueRecorder interface {
	SetOverdue(documents, assignments int)
}

// OverdueScannerConfig holds configuration for the overdue scanner
type OverdueScannerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultOverdueScannerConfig returns default configuration
func DefaultOverdueScannerConfig() OverdueScannerConfig {
	return OverdueScannerConfig{
		Interval: time.Minute,
		Timeout:  30 * time.Second,
	}
}

// OverdueScanner periodically counts overdue documents and assignments and
// notifies assignees once when their assignment becomes overdue.
type OverdueScanner struct {
	config      OverdueScannerConfig
	documents   port.DocumentRepository
	assignments port.AssignmentRepository
	notifier    port.Notifier
	recorder    OverdueRecorder
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	lastRun   time.Time
	runs      int
	lastError error
	notified  map[int64]bool
}

// NewOverdueScanner creates a scanner. recorder and notifier may be nil.
func NewOverdueScanner(
	config OverdueScannerConfig,
	documents port.DocumentRepository,
	assignments port.AssignmentRepository,
	notifier port.Notifier,
	recorder OverdueRecorder,
	logger *zap.Logger,
) *OverdueScanner {
	def := DefaultOverdueScannerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &OverdueScanner{
		config:      config,
		documents:   documents,
		assignments: assignments,
		notifier:    notifier,
		recorder:    recorder,
		logger:      logger,
		now:         time.Now,
		notified:    make(map[int64]bool),
	}
}

// Start runs a first scan immediately and then one per interval
func (w *OverdueScanner) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("overdue scanner already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("OverdueScanner started", zap.Duration("interval", w.config.Interval))
	go w.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for an in-flight scan
func (w *OverdueScanner) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("OverdueScanner stopped", zap.Int("runs", w.Status().Runs))
	return nil
}

// Name returns the worker name for identification
func (w *OverdueScanner) Name() string {
	return "OverdueScanner"
}

// Status reports the scanner state
func (w *OverdueScanner) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Status{Name: w.Name(), Running: w.isRunning, LastRun: w.lastRun, Runs: w.runs}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

func (w *OverdueScanner) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *OverdueScanner) runOnce(ctx context.Context) {
	scanCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	err := w.Scan(scanCtx)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("Overdue scan failed", zap.Error(err))
	}

	w.mu.Lock()
	w.lastRun = w.now()
	w.runs++
	w.lastError = err
	w.mu.Unlock()
}

// Scan performs one pass and returns the overdue counts
func (w *OverdueScanner) Scan(ctx context.Context) error {
	now := w.now()

	docs, err := w.documents.List(ctx, port.DocumentFilter{})
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	overdueDocs := 0
	for _, d := range docs {
		if d.IsOverdue(now) {
			overdueDocs++
		}
	}

	open, err := w.assignments.List(ctx, port.AssignmentFilter{OpenOnly: true})
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	var newlyOverdue []*entity.Assignment
	current := make(map[int64]bool)

	w.mu.Lock()
	for _, a := range open {
		if !a.IsOverdue(now) {
			continue
		}
		current[a.ID] = true
		if !w.notified[a.ID] {
			newlyOverdue = append(newlyOverdue, a)
		}
	}
	w.notified = current
	w.mu.Unlock()

	if w.recorder != nil {
		w.recorder.SetOverdue(overdueDocs, len(current))
	}

	for _, a := range newlyOverdue {
		w.notify(ctx, a, now)
	}

	w.logger.Debug("Overdue scan finished",
		zap.Int("overdue_documents", overdueDocs),
		zap.Int("overdue_assignments", len(current)),
		zap.Int("newly_overdue", len(newlyOverdue)))
	return nil
}

func (w *OverdueScanner) notify(ctx context.Context, a *entity.Assignment, now time.Time) {
	if w.notifier == nil {
		return
	}
	n := &port.Notification{
		Type:         "assignment.overdue",
		DocumentID:   a.DocumentID,
		AssignmentID: a.ID,
		RecipientID:  a.AssigneeID,
		Message:      fmt.Sprintf("Assignment #%d is past its deadline", a.ID),
		At:           now,
	}
	if err := w.notifier.Notify(ctx, n); err != nil {
		w.logger.Warn("Failed to send overdue notification",
			zap.Int64("assignment_id", a.ID),
			zap.Error(err))
	}
}
