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

// DepartmentRepository implements port.DepartmentRepository
type DepartmentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDepartmentRepository creates a new department repository
func NewDepartmentRepository(db *sqlite.DB, logger *zap.Logger) port.DepartmentRepository {
	return &DepartmentRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a department or refreshes the one sharing its id or code
func (r *DepartmentRepository) Upsert(ctx context.Context, dept *entity.Department) error {
	query := `
		INSERT INTO departments (id, name, code, parent_id, head_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			parent_id = excluded.parent_id,
			head_id = excluded.head_id
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			parent_id = excluded.parent_id,
			head_id = excluded.head_id
		RETURNING id
	`

	id := sql.NullInt64{Int64: dept.ID, Valid: dept.ID != 0}
	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		id,
		dept.Name,
		dept.Code,
		nullInt64(dept.ParentID),
		nullInt64(dept.HeadID),
	).Scan(&dept.ID)
	if err != nil {
		r.logger.Error("Failed to upsert department", zap.String("code", dept.Code), zap.Error(err))
		return wrapErr(err, "failed to upsert department %s", dept.Code)
	}
	return nil
}

// GetByID retrieves a department by ID
func (r *DepartmentRepository) GetByID(ctx context.Context, id int64) (*entity.Department, error) {
	query := `SELECT id, name, code, parent_id, head_id FROM departments WHERE id = ?`

	dept, err := scanDepartment(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("department %d: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get department %d", id)
	}
	return dept, nil
}

// List returns all departments ordered by id
func (r *DepartmentRepository) List(ctx context.Context) ([]*entity.Department, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT id, name, code, parent_id, head_id FROM departments ORDER BY id ASC`)
	if err != nil {
		r.logger.Error("Failed to list departments", zap.Error(err))
		return nil, wrapErr(err, "failed to list departments")
	}
	defer rows.Close()

	var out []*entity.Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, dept)
	}
	return out, rows.Err()
}

func scanDepartment(row scanner) (*entity.Department, error) {
	var (
		d            entity.Department
		parent, head sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Code, &parent, &head); err != nil {
		return nil, err
	}
	d.ParentID = int64Ptr(parent)
	d.HeadID = int64Ptr(head)
	return &d, nil
}

// Verify interface compliance
var _ port.DepartmentRepository = (*DepartmentRepository)(nil)
