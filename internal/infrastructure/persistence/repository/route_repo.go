package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

// RouteRepository implements port.RouteRepository
type RouteRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRouteRepository creates a new route step repository
func NewRouteRepository(db *sqlite.DB, logger *zap.Logger) port.RouteRepository {
	return &RouteRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a route step; the (type, order) pair is unique
func (r *RouteRepository) Create(ctx context.Context, step *entity.RouteStep) error {
	query := `
		INSERT INTO route_steps (document_type_id, step_order, approver_role, created_at)
		VALUES (?, ?, ?, ?)
	`

	step.CreatedAt = nowIfZero(step.CreatedAt)
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		step.DocumentTypeID,
		step.StepOrder,
		step.ApproverRole,
		step.CreatedAt,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("type %d order %d: %w", step.DocumentTypeID, step.StepOrder, workflow.ErrDuplicateStepOrder)
		}
		r.logger.Error("Failed to create route step",
			zap.Int64("document_type_id", step.DocumentTypeID),
			zap.Int("step_order", step.StepOrder),
			zap.Error(err))
		return wrapErr(err, "failed to create route step")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	step.ID = id
	return nil
}

// GetByID retrieves a route step by ID
func (r *RouteRepository) GetByID(ctx context.Context, id int64) (*entity.RouteStep, error) {
	query := `
		SELECT id, document_type_id, step_order, approver_role, created_at
		FROM route_steps WHERE id = ?
	`

	step, err := scanStep(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route step %d: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get route step %d", id)
	}
	return step, nil
}

// Delete removes a route step
func (r *RouteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM route_steps WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete route step", zap.Int64("id", id), zap.Error(err))
		return wrapErr(err, "failed to delete route step %d", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("route step %d: %w", id, workflow.ErrNotFound)
	}
	return nil
}

// ListByType returns the steps of one document type ascending by order
func (r *RouteRepository) ListByType(ctx context.Context, documentTypeID int64) ([]*entity.RouteStep, error) {
	query := `
		SELECT id, document_type_id, step_order, approver_role, created_at
		FROM route_steps
		WHERE document_type_id = ?
		ORDER BY step_order ASC
	`
	return r.query(ctx, query, documentTypeID)
}

// ListAll returns every step grouped by type, ascending by order
func (r *RouteRepository) ListAll(ctx context.Context) ([]*entity.RouteStep, error) {
	query := `
		SELECT id, document_type_id, step_order, approver_role, created_at
		FROM route_steps
		ORDER BY document_type_id ASC, step_order ASC
	`
	return r.query(ctx, query)
}

func (r *RouteRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.RouteStep, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list route steps", zap.Error(err))
		return nil, wrapErr(err, "failed to list route steps")
	}
	defer rows.Close()

	var steps []*entity.RouteStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanStep(row scanner) (*entity.RouteStep, error) {
	var step entity.RouteStep
	if err := row.Scan(&step.ID, &step.DocumentTypeID, &step.StepOrder, &step.ApproverRole, &step.CreatedAt); err != nil {
		return nil, err
	}
	return &step, nil
}

// Verify interface compliance
var _ port.RouteRepository = (*RouteRepository)(nil)
