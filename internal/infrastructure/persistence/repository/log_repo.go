package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

// LogRepository implements port.LogRepository. The table is append-only and
// guarded by triggers; no update or delete statement exists here.
type LogRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewLogRepository creates a new workflow log repository
func NewLogRepository(db *sqlite.DB, logger *zap.Logger) port.LogRepository {
	return &LogRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts one entry
func (r *LogRepository) Append(ctx context.Context, entry *entity.WorkflowLog) error {
	query := `
		INSERT INTO workflow_logs (
			document_id, assignment_id, actor_id, action, comment, file_ref, signature, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	entry.Timestamp = nowIfZero(entry.Timestamp)
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entry.DocumentID,
		nullInt64(entry.AssignmentID),
		nullInt64(entry.ActorID),
		entry.Action,
		nullString(entry.Comment),
		nullString(entry.FileRef),
		nullString(entry.Signature),
		entry.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append workflow log",
			zap.Int64("document_id", entry.DocumentID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return wrapErr(err, "failed to append workflow log")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByDocument returns a document's entries ordered by timestamp, then id
func (r *LogRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.WorkflowLog, error) {
	query := `
		SELECT id, document_id, assignment_id, actor_id, action, comment, file_ref, signature, timestamp
		FROM workflow_logs
		WHERE document_id = ?
		ORDER BY timestamp ASC, id ASC
	`
	return r.query(ctx, query, documentID)
}

// ListSince returns entries at or after since, in order
func (r *LogRepository) ListSince(ctx context.Context, since time.Time) ([]*entity.WorkflowLog, error) {
	query := `
		SELECT id, document_id, assignment_id, actor_id, action, comment, file_ref, signature, timestamp
		FROM workflow_logs
		WHERE timestamp >= ?
		ORDER BY timestamp ASC, id ASC
	`
	return r.query(ctx, query, since.UTC())
}

func (r *LogRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.WorkflowLog, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflow logs", zap.Error(err))
		return nil, wrapErr(err, "failed to list workflow logs")
	}
	defer rows.Close()

	var entries []*entity.WorkflowLog
	for rows.Next() {
		var (
			e                           entity.WorkflowLog
			assignmentID, actorID       sql.NullInt64
			comment, fileRef, signature sql.NullString
		)
		err := rows.Scan(
			&e.ID,
			&e.DocumentID,
			&assignmentID,
			&actorID,
			&e.Action,
			&comment,
			&fileRef,
			&signature,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow log: %w", err)
		}
		e.AssignmentID = int64Ptr(assignmentID)
		e.ActorID = int64Ptr(actorID)
		e.Comment = comment.String
		e.FileRef = fileRef.String
		e.Signature = signature.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.LogRepository = (*LogRepository)(nil)
