// Package repository implements the persistence ports on SQLite. Every
// repository resolves its executor from the context so that calls made inside
// TransactionManager.WithTransaction join the open transaction.
package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// wrapErr adds context and maps busy/timeout failures to the retryable kind
func wrapErr(err error, format string, args ...interface{}) error {
	return sqlite.ClassifyError(fmt.Errorf(format+": %w", append(args, err)...))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
