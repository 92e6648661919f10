package service

import (
	"context"
	"fmt"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// AuditService reads the append-only workflow log
type AuditService interface {
	// History returns a visible document's entries ordered by timestamp then id
	History(ctx context.Context, documentID int64, viewer entity.Principal) ([]*entity.HistoryEntry, error)
}

type auditServiceImpl struct {
	documents DocumentService
	logs      port.LogRepository
	users     port.UserRepository
	logger    Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(
	documents DocumentService,
	logs port.LogRepository,
	users port.UserRepository,
	logger Logger,
) AuditService {
	return &auditServiceImpl{
		documents: documents,
		logs:      logs,
		users:     users,
		logger:    logger,
	}
}

// History returns the log of a document with actor names resolved
func (s *auditServiceImpl) History(ctx context.Context, documentID int64, viewer entity.Principal) ([]*entity.HistoryEntry, error) {
	if _, err := s.documents.Get(ctx, documentID, viewer); err != nil {
		return nil, err
	}

	entries, err := s.logs.ListByDocument(ctx, documentID)
	if err != nil {
		s.logger.Error("Failed to load history", "error", err, "document_id", documentID)
		return nil, fmt.Errorf("list history: %w", err)
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range entries {
		if e.ActorID != nil && !seen[*e.ActorID] {
			seen[*e.ActorID] = true
			ids = append(ids, *e.ActorID)
		}
	}

	names := make(map[int64]string, len(ids))
	if len(ids) > 0 {
		users, err := s.users.ListByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve actor names: %w", err)
		}
		for _, u := range users {
			names[u.ID] = u.DisplayName()
		}
	}

	history := make([]*entity.HistoryEntry, len(entries))
	for i, e := range entries {
		h := &entity.HistoryEntry{WorkflowLog: e}
		if e.ActorID != nil {
			h.ActorName = names[*e.ActorID]
		} else {
			h.ActorName = "system"
		}
		history[i] = h
	}
	return history, nil
}
