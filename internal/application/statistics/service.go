package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/docflow/internal/application/port"
)

// Service loads a read snapshot and computes the overview. It never opens a
// write transaction.
type Service struct {
	documents   port.DocumentRepository
	assignments port.AssignmentRepository
	types       port.DocumentTypeRepository
	logs        port.LogRepository
	users       port.UserRepository
	opts        Options
	now         func() time.Time
}

// NewService creates a statistics service
func NewService(
	documents port.DocumentRepository,
	assignments port.AssignmentRepository,
	types port.DocumentTypeRepository,
	logs port.LogRepository,
	users port.UserRepository,
	opts Options,
) *Service {
	return &Service{
		documents:   documents,
		assignments: assignments,
		types:       types,
		logs:        logs,
		users:       users,
		opts:        opts.normalize(),
		now:         time.Now,
	}
}

// WithClock overrides the time source and returns the service
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Overview computes the current figures, resolving executor names
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	now := s.now().UTC()

	docs, err := s.documents.List(ctx, port.DocumentFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	assignments, err := s.assignments.List(ctx, port.AssignmentFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	types, err := s.types.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list document types: %w", err)
	}
	logs, err := s.logs.ListSince(ctx, now.Add(-s.opts.ActivityWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activity: %w", err)
	}

	overview := Compute(Snapshot{
		Documents:   docs,
		Assignments: assignments,
		Types:       types,
		RecentLogs:  logs,
	}, now, s.opts)

	if len(overview.TopExecutors) > 0 {
		ids := make([]int64, len(overview.TopExecutors))
		for i, e := range overview.TopExecutors {
			ids[i] = e.PrincipalID
		}
		users, err := s.users.ListByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executor names: %w", err)
		}
		names := make(map[int64]string, len(users))
		for _, u := range users {
			names[u.ID] = u.DisplayName()
		}
		for i := range overview.TopExecutors {
			overview.TopExecutors[i].Name = names[overview.TopExecutors[i].PrincipalID]
		}
	}

	return overview, nil
}
