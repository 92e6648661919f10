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

// DocumentTypeRepository implements port.DocumentTypeRepository
type DocumentTypeRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDocumentTypeRepository creates a new document type repository
func NewDocumentTypeRepository(db *sqlite.DB, logger *zap.Logger) port.DocumentTypeRepository {
	return &DocumentTypeRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a type or updates the one sharing its code
func (r *DocumentTypeRepository) Upsert(ctx context.Context, docType *entity.DocumentType) error {
	query := `
		INSERT INTO document_types (name, code, description)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			description = excluded.description
		RETURNING id
	`

	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		docType.Name,
		docType.Code,
		docType.Description,
	).Scan(&docType.ID)
	if err != nil {
		r.logger.Error("Failed to upsert document type", zap.String("code", docType.Code), zap.Error(err))
		return wrapErr(err, "failed to upsert document type %s", docType.Code)
	}
	return nil
}

// GetByID retrieves a document type by ID
func (r *DocumentTypeRepository) GetByID(ctx context.Context, id int64) (*entity.DocumentType, error) {
	query := `SELECT id, name, code, description FROM document_types WHERE id = ?`

	docType, err := scanDocumentType(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document type %d: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get document type %d", id)
	}
	return docType, nil
}

// GetByCode retrieves a document type by its unique code
func (r *DocumentTypeRepository) GetByCode(ctx context.Context, code string) (*entity.DocumentType, error) {
	query := `SELECT id, name, code, description FROM document_types WHERE code = ?`

	docType, err := scanDocumentType(r.db.Executor(ctx).QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document type %q: %w", code, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get document type %s", code)
	}
	return docType, nil
}

// List returns all document types ordered by id
func (r *DocumentTypeRepository) List(ctx context.Context) ([]*entity.DocumentType, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT id, name, code, description FROM document_types ORDER BY id ASC`)
	if err != nil {
		r.logger.Error("Failed to list document types", zap.Error(err))
		return nil, wrapErr(err, "failed to list document types")
	}
	defer rows.Close()

	var types []*entity.DocumentType
	for rows.Next() {
		docType, err := scanDocumentType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document type: %w", err)
		}
		types = append(types, docType)
	}
	return types, rows.Err()
}

func scanDocumentType(row scanner) (*entity.DocumentType, error) {
	var t entity.DocumentType
	if err := row.Scan(&t.ID, &t.Name, &t.Code, &t.Description); err != nil {
		return nil, err
	}
	return &t, nil
}

// Verify interface compliance
var _ port.DocumentTypeRepository = (*DocumentTypeRepository)(nil)
