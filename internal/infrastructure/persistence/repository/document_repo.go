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

const documentColumns = `id, title, content, document_type_id, priority, status,
	registration_number, creator_id, current_approver_id, current_step, deadline,
	file_ref, version, created_at, updated_at`

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sqlite.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a document at version 1
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (
			title, content, document_type_id, priority, status,
			registration_number, creator_id, current_approver_id, current_step,
			deadline, file_ref, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	doc.CreatedAt = nowIfZero(doc.CreatedAt)
	doc.UpdatedAt = doc.CreatedAt

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		doc.Title,
		doc.Content,
		doc.DocumentTypeID,
		doc.Priority,
		doc.Status,
		nullString(doc.RegistrationNumber),
		doc.CreatorID,
		nullInt64(doc.CurrentApproverID),
		doc.CurrentStep,
		nullTime(doc.Deadline),
		nullString(doc.FileRef),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Int64("creator_id", doc.CreatorID), zap.Error(err))
		return wrapErr(err, "failed to create document")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	doc.ID = id
	doc.Version = 1
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`

	doc, err := scanDocument(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.Int64("id", id), zap.Error(err))
		return nil, wrapErr(err, "failed to get document %d", id)
	}
	return doc, nil
}

// Update writes doc when the stored version matches and bumps the version
func (r *DocumentRepository) Update(ctx context.Context, doc *entity.Document) error {
	query := `
		UPDATE documents SET
			title = ?, content = ?, priority = ?, status = ?,
			registration_number = ?, current_approver_id = ?, current_step = ?,
			deadline = ?, file_ref = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	now := time.Now().UTC()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		doc.Title,
		doc.Content,
		doc.Priority,
		doc.Status,
		nullString(doc.RegistrationNumber),
		nullInt64(doc.CurrentApproverID),
		doc.CurrentStep,
		nullTime(doc.Deadline),
		nullString(doc.FileRef),
		now,
		doc.ID,
		doc.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update document", zap.Int64("id", doc.ID), zap.Error(err))
		return wrapErr(err, "failed to update document %d", doc.ID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, doc.ID); err != nil {
			return err
		}
		return fmt.Errorf("document %d at version %d: %w", doc.ID, doc.Version, workflow.ErrConcurrentModification)
	}

	doc.Version++
	doc.UpdatedAt = now
	return nil
}

// List returns documents matching filter, newest first
func (r *DocumentRepository) List(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "d.status = ?")
		args = append(args, filter.Status)
	}
	if filter.DocumentTypeID != 0 {
		where = append(where, "d.document_type_id = ?")
		args = append(args, filter.DocumentTypeID)
	}
	if filter.CreatorID != 0 {
		where = append(where, "d.creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if v := filter.Viewer; v != nil {
		clause, clauseArgs := visibilityClause(v)
		where = append(where, clause)
		args = append(args, clauseArgs...)
	}

	query := `SELECT ` + prefixed("d.", documentColumns) + ` FROM documents d`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY d.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, wrapErr(err, "failed to list documents")
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func visibilityClause(v *port.Visibility) (string, []interface{}) {
	assignee := "a.assignee_id = ?"
	args := []interface{}{v.PrincipalID, v.PrincipalID, v.PrincipalID}
	if v.Managerial {
		assignee = "(a.assignee_id = ? OR a.assigned_by_id = ?)"
		args = append(args, v.PrincipalID)
	}

	clause := `(d.creator_id = ? OR d.current_approver_id = ? OR EXISTS (
		SELECT 1 FROM assignments a WHERE a.document_id = d.id AND ` + assignee + `)`
	if v.DepartmentID != nil {
		clause += ` OR d.creator_id IN (SELECT u.id FROM users u WHERE u.department_id = ?)`
		args = append(args, *v.DepartmentID)
	}
	return clause + `)`, args
}

// CountPendingAtStep counts pending documents of a type paused at stepOrder
func (r *DocumentRepository) CountPendingAtStep(ctx context.Context, documentTypeID int64, stepOrder int) (int, error) {
	query := `
		SELECT COUNT(*) FROM documents
		WHERE document_type_id = ? AND status = ? AND current_step = ?
	`

	var n int
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, documentTypeID, entity.DocumentStatusPending, stepOrder).Scan(&n)
	if err != nil {
		return 0, wrapErr(err, "failed to count pending documents")
	}
	return n, nil
}

func scanDocument(row scanner) (*entity.Document, error) {
	var (
		doc          entity.Document
		registration sql.NullString
		approver     sql.NullInt64
		deadline     sql.NullTime
		fileRef      sql.NullString
	)
	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Content,
		&doc.DocumentTypeID,
		&doc.Priority,
		&doc.Status,
		&registration,
		&doc.CreatorID,
		&approver,
		&doc.CurrentStep,
		&deadline,
		&fileRef,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.RegistrationNumber = registration.String
	doc.CurrentApproverID = int64Ptr(approver)
	doc.Deadline = timePtr(deadline)
	doc.FileRef = fileRef.String
	return &doc, nil
}

// prefixed qualifies a comma separated column list with a table alias
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
