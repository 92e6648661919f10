package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

const userColumns = `id, username, full_name, email, role, department_id, supervisor_id, active`

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a user or refreshes the one sharing its id or username.
// A zero ID lets the database assign one.
func (r *UserRepository) Upsert(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, username, full_name, email, role, department_id, supervisor_id, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			email = excluded.email,
			role = excluded.role,
			department_id = excluded.department_id,
			supervisor_id = excluded.supervisor_id,
			active = excluded.active
		ON CONFLICT(username) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			role = excluded.role,
			department_id = excluded.department_id,
			supervisor_id = excluded.supervisor_id,
			active = excluded.active
		RETURNING id
	`

	id := sql.NullInt64{Int64: user.ID, Valid: user.ID != 0}
	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		id,
		user.Username,
		user.FullName,
		user.Email,
		user.Role,
		nullInt64(user.DepartmentID),
		nullInt64(user.SupervisorID),
		user.Active,
	).Scan(&user.ID)
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("username", user.Username), zap.Error(err))
		return wrapErr(err, "failed to upsert user %s", user.Username)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get user %d", id)
	}
	return user, nil
}

// ListByRole returns active holders of role ordered by id
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? AND active = 1 ORDER BY id ASC`
	return r.query(ctx, query, role)
}

// ListByIDs returns the users among ids that exist, ordered by id
func (r *UserRepository) ListByIDs(ctx context.Context, ids []int64) ([]*entity.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders + `) ORDER BY id ASC`
	return r.query(ctx, query, args...)
}

func (r *UserRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, wrapErr(err, "failed to list users")
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row scanner) (*entity.User, error) {
	var (
		u            entity.User
		dept, superv sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &dept, &superv, &u.Active); err != nil {
		return nil, err
	}
	u.DepartmentID = int64Ptr(dept)
	u.SupervisorID = int64Ptr(superv)
	return &u, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
