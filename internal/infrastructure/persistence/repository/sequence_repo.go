package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
)

// SequenceRepository implements port.SequenceRepository with one row per name.
// Inside a transaction the increment rolls back with it, so a failed
// submission never consumes a number.
type SequenceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sqlite.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments the named sequence and returns its new value; the first call returns 1
func (r *SequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`

	var value int64
	if err := r.db.Executor(ctx).QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		r.logger.Error("Failed to advance sequence", zap.String("name", name), zap.Error(err))
		return 0, wrapErr(err, "failed to advance sequence %s", name)
	}
	return value, nil
}

// Verify interface compliance
var _ port.SequenceRepository = (*SequenceRepository)(nil)
