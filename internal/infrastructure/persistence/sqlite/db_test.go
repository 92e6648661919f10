package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/domain/workflow"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewDB(sqlDB, zap.NewNop()), mock
}

func TestWithTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sequences").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		_, err := db.Executor(ctx).ExecContext(ctx, "INSERT INTO sequences (name, value) VALUES ('a', 1)")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_ReusesEnclosing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := db.WithTransaction(context.Background(), func(outer context.Context) error {
		return db.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, db.Executor(outer), db.Executor(inner))
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_BusyBegin(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error { return nil })
	assert.Equal(t, workflow.CodeDependencyUnavailable, workflow.CodeOf(err))
}

func TestExecutor_OutsideTransaction(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Same(t, db.DB, db.Executor(context.Background()))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want workflow.Code
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), workflow.CodeDependencyUnavailable},
		{"canceled", context.Canceled, workflow.CodeDependencyUnavailable},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, workflow.CodeDependencyUnavailable},
		{"known kind passes", workflow.ErrNotFound, workflow.CodeNotFound},
		{"other", errors.New("disk image is malformed"), workflow.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, workflow.CodeOf(ClassifyError(tt.err)))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrap: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})))
	assert.True(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.False(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
}
