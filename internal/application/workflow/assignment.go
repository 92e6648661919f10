package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// loadAssignment fetches an assignment, checks the trigger and that actor is the assignee
func (e *engineImpl) loadAssignment(ctx context.Context, id int64, actor entity.Principal, trigger domainwf.Trigger) (*entity.Assignment, domainwf.StateMachine, error) {
	a, err := e.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	m, err := domainwf.NewAssignmentMachine(a.Status)
	if err != nil {
		return nil, nil, err
	}
	if !m.CanFire(trigger) {
		return nil, nil, invalidTransition(trigger, a.Status)
	}
	if a.AssigneeID != actor.ID {
		return nil, nil, fmt.Errorf("%w: only the assignee may %s assignment %d", domainwf.ErrUnauthorized, trigger, a.ID)
	}
	return a, m, nil
}

// AcceptAssignment acknowledges a pending assignment
func (e *engineImpl) AcceptAssignment(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error) {
	var result *AssignmentResult
	err := e.run(ctx, "accept", assignmentAttrs(req.AssignmentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		a, m, err := e.loadAssignment(ctx, req.AssignmentID, req.Actor, domainwf.TriggerAccept)
		if err != nil {
			return err
		}
		if err := m.Fire(ctx, domainwf.TriggerAccept); err != nil {
			return err
		}

		now := e.clock()
		a.Status = m.State().String()
		a.AcceptedAt = &now
		if err := e.assignments.Update(ctx, a); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID:   a.DocumentID,
			AssignmentID: int64Ptr(a.ID),
			ActorID:      int64Ptr(req.Actor.ID),
			Action:       entity.ActionAccept,
			Timestamp:    now,
		}); err != nil {
			return err
		}

		scope.emit(event.TypeAssignmentAccepted, a.DocumentID, map[string]interface{}{
			event.KeyAssignmentID: a.ID,
			event.KeyActorID:      req.Actor.ID,
			event.KeyRecipientID:  a.AssignedByID,
		})
		result = &AssignmentResult{Assignment: a}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StartAssignment marks an accepted assignment as being worked on
func (e *engineImpl) StartAssignment(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error) {
	var result *AssignmentResult
	err := e.run(ctx, "start", assignmentAttrs(req.AssignmentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		a, m, err := e.loadAssignment(ctx, req.AssignmentID, req.Actor, domainwf.TriggerStart)
		if err != nil {
			return err
		}
		if err := m.Fire(ctx, domainwf.TriggerStart); err != nil {
			return err
		}

		a.Status = m.State().String()
		if err := e.assignments.Update(ctx, a); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID:   a.DocumentID,
			AssignmentID: int64Ptr(a.ID),
			ActorID:      int64Ptr(req.Actor.ID),
			Action:       entity.ActionStart,
			Timestamp:    e.clock(),
		}); err != nil {
			return err
		}

		scope.emit(event.TypeAssignmentStarted, a.DocumentID, map[string]interface{}{
			event.KeyAssignmentID: a.ID,
			event.KeyActorID:      req.Actor.ID,
			event.KeyRecipientID:  a.AssignedByID,
		})
		result = &AssignmentResult{Assignment: a}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteAssignment records the response and, when given, the signature with its timestamp
func (e *engineImpl) CompleteAssignment(ctx context.Context, req CompleteRequest) (*AssignmentResult, error) {
	var result *AssignmentResult
	err := e.run(ctx, "complete", assignmentAttrs(req.AssignmentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		a, m, err := e.loadAssignment(ctx, req.AssignmentID, req.Actor, domainwf.TriggerComplete)
		if err != nil {
			return err
		}
		if strings.TrimSpace(req.Response) == "" {
			return domainwf.Validation("a response is required")
		}
		if err := m.Fire(ctx, domainwf.TriggerComplete); err != nil {
			return err
		}

		now := e.clock()
		a.Status = m.State().String()
		a.Response = req.Response
		a.CompletedAt = &now
		if req.Signature != "" {
			a.Signature = req.Signature
			a.SignedAt = &now
		}
		if err := e.assignments.Update(ctx, a); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID:   a.DocumentID,
			AssignmentID: int64Ptr(a.ID),
			ActorID:      int64Ptr(req.Actor.ID),
			Action:       entity.ActionComplete,
			Comment:      req.Response,
			Timestamp:    now,
		}); err != nil {
			return err
		}

		scope.emit(event.TypeAssignmentCompleted, a.DocumentID, map[string]interface{}{
			event.KeyAssignmentID: a.ID,
			event.KeyActorID:      req.Actor.ID,
			event.KeyRecipientID:  a.AssignedByID,
		})

		completed, err := e.autoComplete(ctx, scope, a.DocumentID)
		if err != nil {
			return err
		}
		result = &AssignmentResult{Assignment: a, DocumentCompleted: completed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Assignment completed",
		"assignment_id", result.Assignment.ID,
		"document_completed", result.DocumentCompleted,
	)
	return result, nil
}

// RejectAssignment declines an assignment. A reason is required.
func (e *engineImpl) RejectAssignment(ctx context.Context, req DeclineRequest) (*AssignmentResult, error) {
	var result *AssignmentResult
	err := e.run(ctx, "decline", assignmentAttrs(req.AssignmentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		a, m, err := e.loadAssignment(ctx, req.AssignmentID, req.Actor, domainwf.TriggerDecline)
		if err != nil {
			return err
		}
		if strings.TrimSpace(req.Reason) == "" {
			return domainwf.Validation("a rejection reason is required")
		}
		if err := m.Fire(ctx, domainwf.TriggerDecline); err != nil {
			return err
		}

		now := e.clock()
		a.Status = m.State().String()
		a.RejectionReason = req.Reason
		a.CompletedAt = &now
		if err := e.assignments.Update(ctx, a); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID:   a.DocumentID,
			AssignmentID: int64Ptr(a.ID),
			ActorID:      int64Ptr(req.Actor.ID),
			Action:       entity.ActionDecline,
			Comment:      req.Reason,
			Timestamp:    now,
		}); err != nil {
			return err
		}

		scope.emit(event.TypeAssignmentRejected, a.DocumentID, map[string]interface{}{
			event.KeyAssignmentID: a.ID,
			event.KeyActorID:      req.Actor.ID,
			event.KeyRecipientID:  a.AssignedByID,
			event.KeyComment:      req.Reason,
		})

		completed, err := e.autoComplete(ctx, scope, a.DocumentID)
		if err != nil {
			return err
		}
		result = &AssignmentResult{Assignment: a, DocumentCompleted: completed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Assignment rejected", "assignment_id", result.Assignment.ID)
	return result, nil
}

// autoComplete completes an in-progress document once none of its assignments
// remain open and at least one was completed. It writes a system log entry.
func (e *engineImpl) autoComplete(ctx context.Context, scope *txScope, documentID int64) (bool, error) {
	doc, err := e.documents.GetByID(ctx, documentID)
	if err != nil {
		return false, err
	}
	m, err := domainwf.NewDocumentMachine(doc.Status)
	if err != nil {
		return false, err
	}
	if !m.CanFire(domainwf.TriggerAutoComplete) {
		return false, nil
	}

	assignments, err := e.assignments.List(ctx, port.AssignmentFilter{DocumentID: documentID})
	if err != nil {
		return false, fmt.Errorf("failed to list assignments: %w", err)
	}
	anyCompleted := false
	for _, a := range assignments {
		if !a.IsTerminal() {
			return false, nil
		}
		if a.Status == entity.AssignmentStatusCompleted {
			anyCompleted = true
		}
	}
	if !anyCompleted {
		return false, nil
	}

	if err := m.Fire(ctx, domainwf.TriggerAutoComplete); err != nil {
		return false, err
	}
	doc.Status = m.State().String()
	if err := e.documents.Update(ctx, doc); err != nil {
		return false, err
	}
	if err := e.appendLog(ctx, &entity.WorkflowLog{
		DocumentID: doc.ID,
		Action:     entity.ActionAutoComplete,
		Timestamp:  e.clock(),
	}); err != nil {
		return false, err
	}

	scope.emit(event.TypeDocumentCompleted, doc.ID, map[string]interface{}{
		event.KeyRecipientID: doc.CreatorID,
		event.KeyTitle:       doc.Title,
	})
	return true, nil
}
