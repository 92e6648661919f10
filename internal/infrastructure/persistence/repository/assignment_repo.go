package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

const assignmentColumns = `id, document_id, assignee_id, assigned_by_id, instruction,
	deadline, status, response, rejection_reason, signature, signed_at,
	accepted_at, completed_at, version, created_at, updated_at`

// AssignmentRepository implements port.AssignmentRepository
type AssignmentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sqlite.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an assignment at version 1
func (r *AssignmentRepository) Create(ctx context.Context, a *entity.Assignment) error {
	query := `
		INSERT INTO assignments (
			document_id, assignee_id, assigned_by_id, instruction, deadline, status,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	a.CreatedAt = nowIfZero(a.CreatedAt)
	a.UpdatedAt = a.CreatedAt
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		a.DocumentID,
		a.AssigneeID,
		a.AssignedByID,
		a.Instruction,
		nullTime(a.Deadline),
		a.Status,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create assignment",
			zap.Int64("document_id", a.DocumentID),
			zap.Int64("assignee_id", a.AssigneeID),
			zap.Error(err))
		return wrapErr(err, "failed to create assignment")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	a.Version = 1
	return nil
}

// GetByID retrieves an assignment by ID
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*entity.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = ?`

	a, err := scanAssignment(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assignment %d: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get assignment %d", id)
	}
	return a, nil
}

// Update writes the mutable fields when the stored version matches
func (r *AssignmentRepository) Update(ctx context.Context, a *entity.Assignment) error {
	query := `
		UPDATE assignments SET
			instruction = ?, deadline = ?, status = ?, response = ?,
			rejection_reason = ?, signature = ?, signed_at = ?,
			accepted_at = ?, completed_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	now := time.Now().UTC()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		a.Instruction,
		nullTime(a.Deadline),
		a.Status,
		nullString(a.Response),
		nullString(a.RejectionReason),
		nullString(a.Signature),
		nullTime(a.SignedAt),
		nullTime(a.AcceptedAt),
		nullTime(a.CompletedAt),
		now,
		a.ID,
		a.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update assignment", zap.Int64("id", a.ID), zap.Error(err))
		return wrapErr(err, "failed to update assignment %d", a.ID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, a.ID); err != nil {
			return err
		}
		return fmt.Errorf("assignment %d at version %d: %w", a.ID, a.Version, workflow.ErrConcurrentModification)
	}

	a.Version++
	a.UpdatedAt = now
	return nil
}

// ListByDocument returns a document's assignments in creation order
func (r *AssignmentRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.Assignment, error) {
	return r.List(ctx, port.AssignmentFilter{DocumentID: documentID})
}

// List returns assignments matching filter in creation order
func (r *AssignmentRepository) List(ctx context.Context, filter port.AssignmentFilter) ([]*entity.Assignment, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.DocumentID != 0 {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.PrincipalID != 0 {
		if filter.IncludeAssigned {
			where = append(where, "(assignee_id = ? OR assigned_by_id = ?)")
			args = append(args, filter.PrincipalID, filter.PrincipalID)
		} else {
			where = append(where, "assignee_id = ?")
			args = append(args, filter.PrincipalID)
		}
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.OpenOnly {
		where = append(where, "status NOT IN (?, ?)")
		args = append(args, entity.AssignmentStatusCompleted, entity.AssignmentStatusRejected)
	}

	query := `SELECT ` + assignmentColumns + ` FROM assignments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list assignments", zap.Error(err))
		return nil, wrapErr(err, "failed to list assignments")
	}
	defer rows.Close()

	var out []*entity.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row scanner) (*entity.Assignment, error) {
	var (
		a                                  entity.Assignment
		deadline, signedAt, accepted, done sql.NullTime
		response, reason, signature        sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.DocumentID,
		&a.AssigneeID,
		&a.AssignedByID,
		&a.Instruction,
		&deadline,
		&a.Status,
		&response,
		&reason,
		&signature,
		&signedAt,
		&accepted,
		&done,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Deadline = timePtr(deadline)
	a.Response = response.String
	a.RejectionReason = reason.String
	a.Signature = signature.String
	a.SignedAt = timePtr(signedAt)
	a.AcceptedAt = timePtr(accepted)
	a.CompletedAt = timePtr(done)
	return &a, nil
}

// Verify interface compliance
var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
