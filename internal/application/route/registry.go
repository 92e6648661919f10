// Package route holds the approval route registry: ordered approval steps per
// document type. Reads are served from an in-memory snapshot; writes go through
// the repository inside a transaction and invalidate the snapshot on commit.
package route

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Registry resolves and mutates approval routes
type Registry struct {
	steps     port.RouteRepository
	types     port.DocumentTypeRepository
	documents port.DocumentRepository
	tx        port.TransactionManager
	logger    Logger

	mu         sync.RWMutex
	cache      map[int64][]*entity.RouteStep
	generation uint64
}

// NewRegistry creates a registry with an empty snapshot
func NewRegistry(
	steps port.RouteRepository,
	types port.DocumentTypeRepository,
	documents port.DocumentRepository,
	tx port.TransactionManager,
	logger Logger,
) *Registry {
	return &Registry{
		steps:     steps,
		types:     types,
		documents: documents,
		tx:        tx,
		logger:    logger,
		cache:     make(map[int64][]*entity.RouteStep),
	}
}

// AddStep appends a step to a document type's route
func (r *Registry) AddStep(ctx context.Context, documentTypeID int64, order int, role string) (*entity.RouteStep, error) {
	if order <= 0 {
		return nil, workflow.Validation("step order must be positive, got %d", order)
	}
	if !entity.IsValidRole(role) {
		return nil, workflow.Validation("unknown approver role %q", role)
	}

	step := &entity.RouteStep{
		DocumentTypeID: documentTypeID,
		StepOrder:      order,
		ApproverRole:   role,
	}

	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := r.types.GetByID(txCtx, documentTypeID); err != nil {
			return err
		}

		existing, err := r.steps.ListByType(txCtx, documentTypeID)
		if err != nil {
			return err
		}
		for _, s := range existing {
			if s.StepOrder == order {
				return fmt.Errorf("%w: type %d already has step %d", workflow.ErrDuplicateStepOrder, documentTypeID, order)
			}
		}

		return r.steps.Create(txCtx, step)
	})
	if err != nil {
		return nil, fmt.Errorf("add route step: %w", err)
	}

	r.Invalidate(documentTypeID)
	r.logger.Info("Route step added",
		"document_type_id", documentTypeID,
		"step_order", order,
		"approver_role", role,
	)
	return step, nil
}

// RemoveStep deletes a step. A step that a pending document is paused at cannot
// be removed; the call fails with workflow.ErrStepInUse and nothing changes.
func (r *Registry) RemoveStep(ctx context.Context, id int64) error {
	var removed *entity.RouteStep

	err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := r.steps.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		inUse, err := r.documents.CountPendingAtStep(txCtx, step.DocumentTypeID, step.StepOrder)
		if err != nil {
			return err
		}
		if inUse > 0 {
			return fmt.Errorf("%w: %d pending document(s) at step %d", workflow.ErrStepInUse, inUse, step.StepOrder)
		}

		removed = step
		return r.steps.Delete(txCtx, id)
	})
	if err != nil {
		return fmt.Errorf("remove route step %d: %w", id, err)
	}

	r.Invalidate(removed.DocumentTypeID)
	r.logger.Info("Route step removed",
		"step_id", id,
		"document_type_id", removed.DocumentTypeID,
		"step_order", removed.StepOrder,
	)
	return nil
}

// StepsFor returns the steps of a document type ascending by order.
// The result may lag behind uncommitted writes but never behind committed ones
// made through this registry.
func (r *Registry) StepsFor(ctx context.Context, documentTypeID int64) ([]*entity.RouteStep, error) {
	r.mu.RLock()
	cached, ok := r.cache[documentTypeID]
	gen := r.generation
	r.mu.RUnlock()
	if ok {
		return copySteps(cached), nil
	}

	steps, err := r.steps.ListByType(ctx, documentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load route for type %d: %w", documentTypeID, err)
	}
	SortSteps(steps)

	r.mu.Lock()
	// A write committed while loading; keep the snapshot empty so the next read reloads
	if r.generation == gen {
		r.cache[documentTypeID] = steps
	}
	r.mu.Unlock()

	return copySteps(steps), nil
}

// NextStep returns the step with the smallest order strictly greater than currentOrder.
func (r *Registry) NextStep(ctx context.Context, documentTypeID int64, currentOrder int) (*entity.RouteStep, bool, error) {
	steps, err := r.StepsFor(ctx, documentTypeID)
	if err != nil {
		return nil, false, err
	}
	next := Next(steps, currentOrder)
	return next, next != nil, nil
}

// Routes lists every document type with its steps
func (r *Registry) Routes(ctx context.Context) ([]*entity.Route, error) {
	types, err := r.types.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}

	routes := make([]*entity.Route, 0, len(types))
	for _, t := range types {
		steps, err := r.StepsFor(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		routes = append(routes, &entity.Route{DocumentType: t, Steps: steps})
	}
	return routes, nil
}

// Invalidate drops the cached snapshot of one document type
func (r *Registry) Invalidate(documentTypeID int64) {
	r.mu.Lock()
	delete(r.cache, documentTypeID)
	r.generation++
	r.mu.Unlock()
}

// Next returns the step with the smallest order strictly greater than currentOrder
// from steps sorted ascending, or nil.
func Next(steps []*entity.RouteStep, currentOrder int) *entity.RouteStep {
	for _, s := range steps {
		if s.StepOrder > currentOrder {
			return s
		}
	}
	return nil
}

// Find returns the step with exactly the given order, or nil.
func Find(steps []*entity.RouteStep, order int) *entity.RouteStep {
	for _, s := range steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// SortSteps orders steps ascending by step order
func SortSteps(steps []*entity.RouteStep) {
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
}

func copySteps(steps []*entity.RouteStep) []*entity.RouteStep {
	out := make([]*entity.RouteStep, len(steps))
	for i, s := range steps {
		c := *s
		out[i] = &c
	}
	return out
}
