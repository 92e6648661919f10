package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

// VersionRepository implements port.DocumentVersionRepository
type VersionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewVersionRepository creates a new document version repository
func NewVersionRepository(db *sqlite.DB, logger *zap.Logger) port.DocumentVersionRepository {
	return &VersionRepository{
		db:     db,
		logger: logger,
	}
}

// Create numbers the version from the current maximum in the same statement
func (r *VersionRepository) Create(ctx context.Context, v *entity.DocumentVersion) error {
	query := `
		INSERT INTO document_versions (
			document_id, version_number, file_ref, file_name, size, creator_id, created_at
		) VALUES (
			?, (SELECT COALESCE(MAX(version_number), 0) + 1 FROM document_versions WHERE document_id = ?),
			?, ?, ?, ?, ?
		)
		RETURNING id, version_number
	`

	v.CreatedAt = nowIfZero(v.CreatedAt)
	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		v.DocumentID,
		v.DocumentID,
		v.FileRef,
		v.FileName,
		v.Size,
		nullInt64(v.CreatorID),
		v.CreatedAt,
	).Scan(&v.ID, &v.VersionNumber)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("document %d version: %w", v.DocumentID, workflow.ErrConcurrentModification)
		}
		r.logger.Error("Failed to create document version",
			zap.Int64("document_id", v.DocumentID),
			zap.String("file_ref", v.FileRef),
			zap.Error(err))
		return wrapErr(err, "failed to create document version")
	}
	return nil
}

// ListByDocument returns versions newest first
func (r *VersionRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.DocumentVersion, error) {
	query := `
		SELECT id, document_id, version_number, file_ref, file_name, size, creator_id, created_at
		FROM document_versions
		WHERE document_id = ?
		ORDER BY version_number DESC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list document versions", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, wrapErr(err, "failed to list document versions")
	}
	defer rows.Close()

	var versions []*entity.DocumentVersion
	for rows.Next() {
		var (
			v         entity.DocumentVersion
			creatorID sql.NullInt64
		)
		err := rows.Scan(
			&v.ID,
			&v.DocumentID,
			&v.VersionNumber,
			&v.FileRef,
			&v.FileName,
			&v.Size,
			&creatorID,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document version: %w", err)
		}
		v.CreatorID = int64Ptr(creatorID)
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// Verify interface compliance
var _ port.DocumentVersionRepository = (*VersionRepository)(nil)
